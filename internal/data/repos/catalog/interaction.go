package catalog

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type CategoryCount struct {
	Name  string `gorm:"column:name"`
	Count int    `gorm:"column:total"`
}

type InteractionRepo interface {
	Create(dbc dbctx.Context, row *types.Interaction) error
	ListRecentByUser(dbc dbctx.Context, userID int64, limit int) ([]*types.Interaction, error)
	CategoryCounts(dbc dbctx.Context, userID int64) ([]CategoryCount, error)
	CreateRating(dbc dbctx.Context, row *types.Rating) error
}

type interactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInteractionRepo(db *gorm.DB, baseLog *logger.Logger) InteractionRepo {
	return &interactionRepo{db: db, log: baseLog.With("repo", "InteractionRepo")}
}

func (r *interactionRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx)
}

func (r *interactionRepo) Create(dbc dbctx.Context, row *types.Interaction) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.tx(dbc).Create(row).Error
}

// ListRecentByUser returns newest first, with each book and its category loaded.
func (r *interactionRepo) ListRecentByUser(dbc dbctx.Context, userID int64, limit int) ([]*types.Interaction, error) {
	var out []*types.Interaction
	if limit <= 0 {
		return out, nil
	}
	if err := r.tx(dbc).
		Preload("Book").
		Preload("Book.Category").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CategoryCounts tallies the user's interactions per book category, largest first.
func (r *interactionRepo) CategoryCounts(dbc dbctx.Context, userID int64) ([]CategoryCount, error) {
	var out []CategoryCount
	err := r.tx(dbc).
		Table("interactions").
		Select("categories.name AS name, COUNT(interactions.id) AS total").
		Joins("JOIN books ON books.id = interactions.book_id").
		Joins("JOIN categories ON categories.id = books.category_id").
		Where("interactions.user_id = ?", userID).
		Group("categories.name").
		Order("total DESC").
		Order("categories.name ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *interactionRepo) CreateRating(dbc dbctx.Context, row *types.Rating) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.tx(dbc).Create(row).Error
}
