package catalog

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type UserRepo interface {
	GetByID(dbc dbctx.Context, id int64) (*types.User, error)
	PreferredCategories(dbc dbctx.Context, id int64) ([]string, error)
	ListAfterID(dbc dbctx.Context, afterID int64, limit int) ([]*types.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) GetByID(dbc dbctx.Context, id int64) (*types.User, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var u types.User
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PreferredCategories splits the user's comma-separated preference list.
func (r *userRepo) PreferredCategories(dbc dbctx.Context, id int64) ([]string, error) {
	u, err := r.GetByID(dbc, id)
	if err != nil || u == nil {
		return nil, err
	}
	var out []string
	for _, part := range strings.Split(u.PreferredCategories, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *userRepo) ListAfterID(dbc dbctx.Context, afterID int64, limit int) ([]*types.User, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.User
	if limit <= 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
