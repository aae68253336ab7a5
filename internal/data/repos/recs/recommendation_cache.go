package recs

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type RecommendationCacheRepo interface {
	Get(dbc dbctx.Context, userID int64) (*types.RecommendationCacheEntry, error)
	// Upsert stores a fresh payload and clears the stale flag.
	Upsert(dbc dbctx.Context, userID int64, recs []types.CachedRecommendation) error
	MarkStale(dbc dbctx.Context, userID int64) error
}

type recommendationCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecommendationCacheRepo(db *gorm.DB, baseLog *logger.Logger) RecommendationCacheRepo {
	return &recommendationCacheRepo{db: db, log: baseLog.With("repo", "RecommendationCacheRepo")}
}

func (r *recommendationCacheRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx)
}

func (r *recommendationCacheRepo) Get(dbc dbctx.Context, userID int64) (*types.RecommendationCacheEntry, error) {
	var row types.RecommendationCacheEntry
	err := r.tx(dbc).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *recommendationCacheRepo) Upsert(dbc dbctx.Context, userID int64, recs []types.CachedRecommendation) error {
	if recs == nil {
		recs = []types.CachedRecommendation{}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	row := &types.RecommendationCacheEntry{
		UserID:          userID,
		Recommendations: datatypes.JSON(raw),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return r.tx(dbc).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"recommendations": row.Recommendations,
			"is_stale":        false,
			"updated_at":      now,
		}),
	}).Create(row).Error
}

func (r *recommendationCacheRepo) MarkStale(dbc dbctx.Context, userID int64) error {
	return r.tx(dbc).
		Model(&types.RecommendationCacheEntry{}).
		Where("user_id = ?", userID).
		Update("is_stale", true).Error
}
