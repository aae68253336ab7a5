package catalog

import "time"

type Category struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"column:name;size:100;not null;uniqueIndex" json:"name"`
}

func (Category) TableName() string { return "categories" }

type Book struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ISBN            string    `gorm:"column:isbn;size:20;index" json:"isbn,omitempty"`
	Title           string    `gorm:"column:title;size:255;not null;index" json:"title"`
	Author          string    `gorm:"column:author;size:255;index" json:"author"`
	Publisher       string    `gorm:"column:publisher;size:255" json:"publisher,omitempty"`
	PublicationYear int       `gorm:"column:publication_year" json:"publication_year,omitempty"`
	Description     string    `gorm:"column:description" json:"description,omitempty"`
	CoverURL        string    `gorm:"column:cover_url;size:500" json:"cover_url,omitempty"`
	CategoryID      *int64    `gorm:"column:category_id;index" json:"category_id,omitempty"`
	Category        *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	AverageRating   float64   `gorm:"column:average_rating;not null;default:0" json:"average_rating"`
}

func (Book) TableName() string { return "books" }

// CategoryName is empty when the book has no loaded category.
func (b *Book) CategoryName() string {
	if b == nil || b.Category == nil {
		return ""
	}
	return b.Category.Name
}

type User struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username            string    `gorm:"column:username;size:50;not null;uniqueIndex" json:"username"`
	Gender              string    `gorm:"column:gender;size:10" json:"gender,omitempty"`
	Age                 int       `gorm:"column:age" json:"age,omitempty"`
	PreferredCategories string    `gorm:"column:preferred_categories" json:"preferred_categories,omitempty"`
	CreatedAt           time.Time `gorm:"not null;index" json:"created_at"`
}

func (User) TableName() string { return "users" }

const (
	InteractionClick   = "click"
	InteractionCollect = "collect"
	InteractionRating  = "rating"
	InteractionCart    = "cart"
	InteractionBuy     = "purchase"
)

type Interaction struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	BookID          int64     `gorm:"column:book_id;not null;index" json:"book_id"`
	Book            *Book     `gorm:"foreignKey:BookID" json:"book,omitempty"`
	InteractionType string    `gorm:"column:interaction_type;size:20;not null" json:"interaction_type"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
}

func (Interaction) TableName() string { return "interactions" }

type Rating struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	BookID    int64     `gorm:"column:book_id;not null;index" json:"book_id"`
	Rating    int       `gorm:"column:rating;not null" json:"rating"`
	Comment   string    `gorm:"column:comment" json:"comment,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Rating) TableName() string { return "ratings" }

type SearchLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	Query     string    `gorm:"column:query;size:255;not null" json:"query"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (SearchLog) TableName() string { return "search_logs" }
