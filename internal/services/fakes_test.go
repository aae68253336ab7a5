package services

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/bookrec-backend/internal/clients/llm"
	"github.com/yungbote/bookrec-backend/internal/data/graph"
	types "github.com/yungbote/bookrec-backend/internal/domain"
)

type fakeGraph struct {
	mu sync.Mutex

	down        bool
	candidates  []types.Candidate
	inCategory  []graph.CategoryBook
	neighbours  map[int64]graph.Neighbours
	local       map[int64][]int64
	lastQuery   graph.CandidateQuery
	dislikes    map[[2]int64]string
	synced      []string
	candidateFn func(q graph.CandidateQuery) ([]types.Candidate, error)
}

var errGraphDown = errors.New("graph down")

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		neighbours: map[int64]graph.Neighbours{},
		local:      map[int64][]int64{},
		dislikes:   map[[2]int64]string{},
	}
}

func (g *fakeGraph) Available() bool { return !g.down }

func (g *fakeGraph) Candidates(_ context.Context, q graph.CandidateQuery) ([]types.Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastQuery = q
	if g.down {
		return nil, errGraphDown
	}
	if g.candidateFn != nil {
		return g.candidateFn(q)
	}
	out := make([]types.Candidate, len(g.candidates))
	copy(out, g.candidates)
	return out, nil
}

func (g *fakeGraph) BooksInCategories(_ context.Context, _ []string, limit int) ([]graph.CategoryBook, error) {
	if g.down {
		return nil, errGraphDown
	}
	out := g.inCategory
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGraph) ExtendedNeighbours(_ context.Context, bookID int64, limits graph.NeighbourLimits) (graph.Neighbours, error) {
	if g.down {
		return graph.Neighbours{}, errGraphDown
	}
	n, ok := g.neighbours[bookID]
	if !ok {
		return graph.Neighbours{}, graph.ErrBookNotFound
	}
	return n, nil
}

func (g *fakeGraph) LocalNeighbours(_ context.Context, bookID int64, limit int) ([]int64, error) {
	if g.down {
		return nil, errGraphDown
	}
	ids, ok := g.local[bookID]
	if !ok {
		return nil, graph.ErrBookNotFound
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (g *fakeGraph) SyncInteraction(_ context.Context, userID, bookID int64, interactionType string, _ *int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errGraphDown
	}
	g.synced = append(g.synced, interactionType)
	return nil
}

func (g *fakeGraph) SyncDislike(_ context.Context, userID, bookID int64, feedbackType string, _ int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errGraphDown
	}
	g.dislikes[[2]int64{userID, bookID}] = feedbackType
	return nil
}

func (g *fakeGraph) RemoveDislike(_ context.Context, userID, bookID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.dislikes, [2]int64{userID, bookID})
	return nil
}

type fakeReranker struct {
	mu        sync.Mutex
	calls     int
	err       error
	out       []llm.Refined
	lastInput []llm.Candidate
	history   []string
}

func (r *fakeReranker) Refine(_ context.Context, history []string, candidates []llm.Candidate) ([]llm.Refined, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastInput = candidates
	r.history = history
	if r.err != nil {
		return nil, r.err
	}
	return r.out, nil
}

func graphBook(id int64, category string) graph.CategoryBook {
	return graph.CategoryBook{BookID: id, Category: category}
}
