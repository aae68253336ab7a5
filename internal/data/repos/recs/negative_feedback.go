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

type NegativeFeedbackRepo interface {
	// Upsert writes the row as the active record for its user and book,
	// replacing whatever was there.
	Upsert(dbc dbctx.Context, row *types.NegativeFeedback) error
	// InsertUnlessActive writes the row only when no active record exists
	// for its user and book. It reports whether a write happened.
	InsertUnlessActive(dbc dbctx.Context, row *types.NegativeFeedback) (bool, error)
	Get(dbc dbctx.Context, userID, bookID int64) (*types.NegativeFeedback, error)
	Deactivate(dbc dbctx.Context, userID, bookID int64) (bool, error)
	DeactivateByIDs(dbc dbctx.Context, ids []int64) error
	ListActiveByUser(dbc dbctx.Context, userID int64) ([]*types.NegativeFeedback, error)
	ListActiveUserIDs(dbc dbctx.Context) ([]int64, error)
	CountActiveByType(dbc dbctx.Context, userID int64) (map[string]int, error)
}

type negativeFeedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNegativeFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) NegativeFeedbackRepo {
	return &negativeFeedbackRepo{db: db, log: baseLog.With("repo", "NegativeFeedbackRepo")}
}

func (r *negativeFeedbackRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx)
}

func stamp(row *types.NegativeFeedback) {
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	row.IsActive = true
}

func (r *negativeFeedbackRepo) Upsert(dbc dbctx.Context, row *types.NegativeFeedback) error {
	stamp(row)
	return r.tx(dbc).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"feedback_type": row.FeedbackType,
			"reason":        row.Reason,
			"strength":      row.Strength,
			"is_active":     true,
			"updated_at":    row.UpdatedAt,
		}),
	}).Create(row).Error
}

func (r *negativeFeedbackRepo) InsertUnlessActive(dbc dbctx.Context, row *types.NegativeFeedback) (bool, error) {
	stamp(row)
	res := r.tx(dbc).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "negative_feedback", Name: "is_active"}, Value: false},
		}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"feedback_type": row.FeedbackType,
			"reason":        row.Reason,
			"strength":      row.Strength,
			"is_active":     true,
			"created_at":    row.CreatedAt,
			"updated_at":    row.UpdatedAt,
		}),
	}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *negativeFeedbackRepo) Get(dbc dbctx.Context, userID, bookID int64) (*types.NegativeFeedback, error) {
	var row types.NegativeFeedback
	err := r.tx(dbc).Where("user_id = ? AND book_id = ?", userID, bookID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *negativeFeedbackRepo) Deactivate(dbc dbctx.Context, userID, bookID int64) (bool, error) {
	res := r.tx(dbc).
		Model(&types.NegativeFeedback{}).
		Where("user_id = ? AND book_id = ? AND is_active = ?", userID, bookID, true).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *negativeFeedbackRepo) DeactivateByIDs(dbc dbctx.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.tx(dbc).
		Model(&types.NegativeFeedback{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()}).Error
}

func (r *negativeFeedbackRepo) ListActiveByUser(dbc dbctx.Context, userID int64) ([]*types.NegativeFeedback, error) {
	var out []*types.NegativeFeedback
	if err := r.tx(dbc).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *negativeFeedbackRepo) ListActiveUserIDs(dbc dbctx.Context) ([]int64, error) {
	var out []int64
	if err := r.tx(dbc).
		Model(&types.NegativeFeedback{}).
		Where("is_active = ?", true).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *negativeFeedbackRepo) CountActiveByType(dbc dbctx.Context, userID int64) (map[string]int, error) {
	var rows []struct {
		FeedbackType string `gorm:"column:feedback_type"`
		Total        int    `gorm:"column:total"`
	}
	if err := r.tx(dbc).
		Model(&types.NegativeFeedback{}).
		Select("feedback_type, COUNT(id) AS total").
		Where("user_id = ? AND is_active = ?", userID, true).
		Group("feedback_type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.FeedbackType] = r.Total
	}
	return out, nil
}
