package catalog

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type SearchLogRepo interface {
	Create(dbc dbctx.Context, row *types.SearchLog) error
	ListRecentByUser(dbc dbctx.Context, userID int64, limit int) ([]*types.SearchLog, error)
}

type searchLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSearchLogRepo(db *gorm.DB, baseLog *logger.Logger) SearchLogRepo {
	return &searchLogRepo{db: db, log: baseLog.With("repo", "SearchLogRepo")}
}

func (r *searchLogRepo) Create(dbc dbctx.Context, row *types.SearchLog) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *searchLogRepo) ListRecentByUser(dbc dbctx.Context, userID int64, limit int) ([]*types.SearchLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.SearchLog
	if limit <= 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
