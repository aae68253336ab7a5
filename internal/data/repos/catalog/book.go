package catalog

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type BookRepo interface {
	GetByID(dbc dbctx.Context, id int64) (*types.Book, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.Book, error)
	ListPopular(dbc dbctx.Context, exclude []int64, limit int) ([]*types.Book, error)
	Search(dbc dbctx.Context, query string, limit int) ([]*types.Book, error)
	ListByCategoryNames(dbc dbctx.Context, names []string, limit int) ([]*types.Book, error)
	ListCategoryNames(dbc dbctx.Context) ([]string, error)
	// ListAfterID pages through the catalog in id order.
	ListAfterID(dbc dbctx.Context, afterID int64, limit int) ([]*types.Book, error)
}

type bookRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBookRepo(db *gorm.DB, baseLog *logger.Logger) BookRepo {
	return &bookRepo{db: db, log: baseLog.With("repo", "BookRepo")}
}

func (r *bookRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx)
}

func (r *bookRepo) GetByID(dbc dbctx.Context, id int64) (*types.Book, error) {
	if id <= 0 {
		return nil, nil
	}
	var b types.Book
	err := r.tx(dbc).Preload("Category").Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByIDs returns the books found, in the order of ids.
func (r *bookRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.Book, error) {
	var rows []*types.Book
	if len(ids) == 0 {
		return rows, nil
	}
	if err := r.tx(dbc).Preload("Category").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]*types.Book, len(rows))
	for _, b := range rows {
		byID[b.ID] = b
	}
	out := make([]*types.Book, 0, len(rows))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			out = append(out, b)
			delete(byID, id)
		}
	}
	return out, nil
}

func (r *bookRepo) ListPopular(dbc dbctx.Context, exclude []int64, limit int) ([]*types.Book, error) {
	var out []*types.Book
	if limit <= 0 {
		return out, nil
	}
	q := r.tx(dbc).Preload("Category").Order("average_rating DESC").Order("id ASC").Limit(limit)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bookRepo) Search(dbc dbctx.Context, query string, limit int) ([]*types.Book, error) {
	var out []*types.Book
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return out, nil
	}
	like := "%" + query + "%"
	if err := r.tx(dbc).
		Preload("Category").
		Where("title LIKE ? OR author LIKE ?", like, like).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bookRepo) ListByCategoryNames(dbc dbctx.Context, names []string, limit int) ([]*types.Book, error) {
	var out []*types.Book
	if len(names) == 0 || limit <= 0 {
		return out, nil
	}
	if err := r.tx(dbc).
		Preload("Category").
		Joins("JOIN categories ON categories.id = books.category_id").
		Where("categories.name IN ?", names).
		Order("books.average_rating DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bookRepo) ListCategoryNames(dbc dbctx.Context) ([]string, error) {
	var out []string
	if err := r.tx(dbc).Model(&types.Category{}).Order("name ASC").Pluck("name", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bookRepo) ListAfterID(dbc dbctx.Context, afterID int64, limit int) ([]*types.Book, error) {
	var out []*types.Book
	if limit <= 0 {
		return out, nil
	}
	if err := r.tx(dbc).
		Preload("Category").
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
