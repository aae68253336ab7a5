package recs

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

// ExposureRepo counters are bumped with single upsert statements so
// concurrent callers never lose an increment.
type ExposureRepo interface {
	IncrementExposure(dbc dbctx.Context, userID, bookID int64) (*types.ExposureLog, error)
	IncrementClick(dbc dbctx.Context, userID, bookID int64) (*types.ExposureLog, error)
	Get(dbc dbctx.Context, userID, bookID int64) (*types.ExposureLog, error)
	GetMany(dbc dbctx.Context, userID int64, bookIDs []int64) (map[int64]*types.ExposureLog, error)
	CountUnclicked(dbc dbctx.Context, userID int64, minExposure int) (int64, error)
}

type exposureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExposureRepo(db *gorm.DB, baseLog *logger.Logger) ExposureRepo {
	return &exposureRepo{db: db, log: baseLog.With("repo", "ExposureRepo")}
}

func (r *exposureRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx)
}

func (r *exposureRepo) IncrementExposure(dbc dbctx.Context, userID, bookID int64) (*types.ExposureLog, error) {
	now := time.Now().UTC()
	row := &types.ExposureLog{UserID: userID, BookID: bookID, ExposureCount: 1, LastExposureAt: now}
	err := r.tx(dbc).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"exposure_count":   gorm.Expr("exposure_logs.exposure_count + 1"),
			"last_exposure_at": now,
		}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.Get(dbc, userID, bookID)
}

func (r *exposureRepo) IncrementClick(dbc dbctx.Context, userID, bookID int64) (*types.ExposureLog, error) {
	now := time.Now().UTC()
	row := &types.ExposureLog{UserID: userID, BookID: bookID, ClickCount: 1, LastExposureAt: now}
	err := r.tx(dbc).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"click_count": gorm.Expr("exposure_logs.click_count + 1"),
		}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.Get(dbc, userID, bookID)
}

func (r *exposureRepo) Get(dbc dbctx.Context, userID, bookID int64) (*types.ExposureLog, error) {
	var row types.ExposureLog
	err := r.tx(dbc).Where("user_id = ? AND book_id = ?", userID, bookID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *exposureRepo) GetMany(dbc dbctx.Context, userID int64, bookIDs []int64) (map[int64]*types.ExposureLog, error) {
	out := map[int64]*types.ExposureLog{}
	if len(bookIDs) == 0 {
		return out, nil
	}
	var rows []*types.ExposureLog
	if err := r.tx(dbc).Where("user_id = ? AND book_id IN ?", userID, bookIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.BookID] = row
	}
	return out, nil
}

func (r *exposureRepo) CountUnclicked(dbc dbctx.Context, userID int64, minExposure int) (int64, error) {
	var n int64
	err := r.tx(dbc).
		Model(&types.ExposureLog{}).
		Where("user_id = ? AND click_count = 0 AND exposure_count >= ?", userID, minExposure).
		Count(&n).Error
	return n, err
}
