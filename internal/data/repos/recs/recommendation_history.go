package recs

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type RecommendationHistoryRepo interface {
	// Recent returns the ids served to the user, oldest first.
	Recent(dbc dbctx.Context, userID int64) ([]int64, error)
	// Append adds ids to the window, keeping only the newest WindowSize.
	Append(dbc dbctx.Context, userID int64, ids []int64) error
}

type recommendationHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecommendationHistoryRepo(db *gorm.DB, baseLog *logger.Logger) RecommendationHistoryRepo {
	return &recommendationHistoryRepo{db: db, log: baseLog.With("repo", "RecommendationHistoryRepo")}
}

func (r *recommendationHistoryRepo) get(t *gorm.DB, userID int64) (*types.RecommendationHistory, []int64, error) {
	var row types.RecommendationHistory
	err := t.Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var ids []int64
	if len(row.RecommendedBooks) > 0 {
		if err := json.Unmarshal(row.RecommendedBooks, &ids); err != nil {
			r.log.Warn("Discarding malformed recommendation history", "user_id", userID, "error", err)
			ids = nil
		}
	}
	return &row, ids, nil
}

func (r *recommendationHistoryRepo) Recent(dbc dbctx.Context, userID int64) ([]int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	_, ids, err := r.get(t.WithContext(dbc.Ctx), userID)
	return ids, err
}

func (r *recommendationHistoryRepo) Append(dbc dbctx.Context, userID int64, ids []int64) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		row, existing, err := r.get(tx, userID)
		if err != nil {
			return err
		}
		window := types.DefaultHistoryWindow
		if row != nil && row.WindowSize > 0 {
			window = row.WindowSize
		}
		combined := append(existing, ids...)
		if len(combined) > window {
			combined = combined[len(combined)-window:]
		}
		raw, err := json.Marshal(combined)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if row == nil {
			return tx.Create(&types.RecommendationHistory{
				UserID:           userID,
				RecommendedBooks: datatypes.JSON(raw),
				WindowSize:       window,
				CreatedAt:        now,
				UpdatedAt:        now,
			}).Error
		}
		return tx.Model(&types.RecommendationHistory{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{"recommended_books": datatypes.JSON(raw), "updated_at": now}).Error
	})
}
