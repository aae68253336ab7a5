package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/bookrec-backend/internal/domain"
)

func SeedCategory(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Category {
	tb.Helper()
	c := &types.Category{Name: name}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed category: %v", err)
	}
	return c
}

func SeedBook(tb testing.TB, ctx context.Context, tx *gorm.DB, title, author string, cat *types.Category, rating float64) *types.Book {
	tb.Helper()
	b := &types.Book{
		Title:           title,
		Author:          author,
		PublicationYear: 2000,
		AverageRating:   rating,
	}
	if cat != nil {
		id := cat.ID
		b.CategoryID = &id
	}
	if err := tx.WithContext(ctx).Create(b).Error; err != nil {
		tb.Fatalf("seed book: %v", err)
	}
	b.Category = cat
	return b
}

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, username string) *types.User {
	tb.Helper()
	u := &types.User{Username: username, CreatedAt: time.Now().UTC()}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedInteraction(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, bookID int64, kind string, at time.Time) *types.Interaction {
	tb.Helper()
	i := &types.Interaction{UserID: userID, BookID: bookID, InteractionType: kind, CreatedAt: at}
	if err := tx.WithContext(ctx).Create(i).Error; err != nil {
		tb.Fatalf("seed interaction: %v", err)
	}
	return i
}

func SeedSearch(tb testing.TB, ctx context.Context, tx *gorm.DB, userID int64, query string, at time.Time) *types.SearchLog {
	tb.Helper()
	s := &types.SearchLog{UserID: userID, Query: query, CreatedAt: at}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed search log: %v", err)
	}
	return s
}

func SeedFeedback(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, bookID int64, kind string, strength int, at time.Time) *types.NegativeFeedback {
	tb.Helper()
	f := &types.NegativeFeedback{
		UserID:       userID,
		BookID:       bookID,
		FeedbackType: kind,
		Strength:     strength,
		IsActive:     true,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed feedback: %v", err)
	}
	return f
}

func PtrInt64(v int64) *int64 { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
