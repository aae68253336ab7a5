package services

import (
	"context"

	"github.com/yungbote/bookrec-backend/internal/data/graph"
	types "github.com/yungbote/bookrec-backend/internal/domain"
)

// BookGraph is the part of the graph store the services use. *graph.Store
// implements it; a store without a client reports graph.ErrUnavailable on
// reads and ignores writes.
type BookGraph interface {
	Available() bool

	Candidates(ctx context.Context, q graph.CandidateQuery) ([]types.Candidate, error)
	BooksInCategories(ctx context.Context, categories []string, limit int) ([]graph.CategoryBook, error)

	ExtendedNeighbours(ctx context.Context, bookID int64, limits graph.NeighbourLimits) (graph.Neighbours, error)
	LocalNeighbours(ctx context.Context, bookID int64, limit int) ([]int64, error)

	SyncInteraction(ctx context.Context, userID, bookID int64, interactionType string, rating *int) error
	SyncDislike(ctx context.Context, userID, bookID int64, feedbackType string, strength int) error
	RemoveDislike(ctx context.Context, userID, bookID int64) error
}

var _ BookGraph = (*graph.Store)(nil)
