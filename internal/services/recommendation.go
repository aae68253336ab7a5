package services

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/bookrec-backend/internal/clients/llm"
	"github.com/yungbote/bookrec-backend/internal/data/graph"
	"github.com/yungbote/bookrec-backend/internal/data/repos"
	"github.com/yungbote/bookrec-backend/internal/diversity"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/bookrec-backend/internal/pkg/errors"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

const (
	searchScore     = 0.9
	popularScore    = 0.5
	coldStartScore  = 0.8
	historyTitleMax = 10
	recentSearchMax = 3
	searchMatchMax  = 2
)

// Recommendation is one served entry with its book loaded.
type Recommendation struct {
	Book   *types.Book `json:"book"`
	Score  float64     `json:"score"`
	Reason string      `json:"reason"`
	Tags   []string    `json:"tags"`
}

type RecommendationService interface {
	// GetRecommendations serves the cached list unless forceRefresh is set,
	// otherwise runs the pipeline and stores the result. Graph and reranker
	// failures degrade; only relational read failures are returned.
	GetRecommendations(ctx context.Context, userID int64, limit int, mode diversity.Mode, forceRefresh bool) ([]Recommendation, error)
	// Compute runs the pipeline with defaults and returns the cache payload
	// without writing anything. It satisfies ComputeFunc.
	Compute(ctx context.Context, userID int64) ([]types.CachedRecommendation, error)
	ColdStart(ctx context.Context, categories, moods []string, limit int) ([]Recommendation, error)
	DiversityMetrics(ctx context.Context, userID int64, limit int) (diversity.Metrics, error)
}

type RecommendationOptions struct {
	Limit int
	Mode  diversity.Mode
	// RerankShortlist is how many graph candidates the reranker sees.
	RerankShortlist int
	// FallbackCount is how many graph candidates pass through when the
	// reranker is unavailable.
	FallbackCount         int
	CategoryAuthorPenalty float64
	// CandidateMultiplier scales the limit into the graph query size.
	CandidateMultiplier int
}

type RecommendationDeps struct {
	Cache        CacheManager
	Blacklist    BlacklistService
	Feedback     NegativeFeedbackService
	Profiler     InterestProfiler
	Graph        BookGraph
	Reranker     llm.Reranker
	Diversity    *diversity.Reranker
	Books        repos.BookRepo
	Users        repos.UserRepo
	Interactions repos.InteractionRepo
	Searches     repos.SearchLogRepo
	History      repos.RecommendationHistoryRepo
	Log          *logger.Logger
	Metrics      *observability.Metrics
}

type recommendationService struct {
	deps    RecommendationDeps
	log     *logger.Logger
	opts    RecommendationOptions
	shuffle func(n int, swap func(i, j int))
}

func NewRecommendationService(deps RecommendationDeps, opts RecommendationOptions) (RecommendationService, error) {
	if deps.Cache == nil || deps.Blacklist == nil || deps.Feedback == nil || deps.Profiler == nil ||
		deps.Books == nil || deps.Users == nil || deps.Interactions == nil || deps.Searches == nil ||
		deps.History == nil || deps.Log == nil {
		return nil, fmt.Errorf("recommendation service: missing deps")
	}
	if deps.Diversity == nil {
		deps.Diversity = diversity.New(diversity.Options{})
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Mode == "" {
		opts.Mode = diversity.ModeQuota
	}
	if opts.RerankShortlist <= 0 {
		opts.RerankShortlist = 15
	}
	if opts.FallbackCount <= 0 {
		opts.FallbackCount = 10
	}
	if opts.CategoryAuthorPenalty <= 0 {
		opts.CategoryAuthorPenalty = 0.5
	}
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = 3
	}
	return &recommendationService{
		deps:    deps,
		log:     deps.Log.With("service", "RecommendationService"),
		opts:    opts,
		shuffle: rand.Shuffle,
	}, nil
}

func (s *recommendationService) GetRecommendations(ctx context.Context, userID int64, limit int, mode diversity.Mode, forceRefresh bool) ([]Recommendation, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", apperr.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = s.opts.Limit
	}
	if mode == "" {
		mode = s.opts.Mode
	}
	start := time.Now()

	if !forceRefresh {
		if cached, ok := s.deps.Cache.Get(ctx, userID); ok {
			cached = s.dropBlacklisted(ctx, userID, cached)
			out, err := s.hydrate(ctx, cached, limit)
			if err == nil && len(out) > 0 {
				s.deps.Metrics.ObservePipeline("cache", time.Since(start))
				return out, nil
			}
		}
	}

	cands, err := s.build(ctx, userID, limit, mode)
	if err != nil {
		s.deps.Metrics.ObservePipeline("error", time.Since(start))
		return nil, err
	}
	payload := types.ToCachedList(cands)
	if !s.deps.Cache.Set(ctx, userID, payload) {
		s.log.Warn("Cache write failed", "user_id", userID)
	}
	if err := s.deps.History.Append(dbctx.Context{Ctx: ctx}, userID, types.CandidateIDs(cands)); err != nil {
		s.log.Warn("History append failed", "user_id", userID, "error", err)
	}

	out, err := s.hydrate(ctx, payload, limit)
	if err != nil {
		s.deps.Metrics.ObservePipeline("error", time.Since(start))
		return nil, err
	}
	s.deps.Metrics.ObservePipeline("computed", time.Since(start))
	return out, nil
}

// dropBlacklisted removes books blacklisted after the list was cached.
func (s *recommendationService) dropBlacklisted(ctx context.Context, userID int64, cached []types.CachedRecommendation) []types.CachedRecommendation {
	ids := make([]int64, 0, len(cached))
	for _, r := range cached {
		ids = append(ids, r.BookID)
	}
	keep := s.deps.Blacklist.Filter(ctx, userID, ids)
	if len(keep) == len(ids) {
		return cached
	}
	allowed := make(map[int64]bool, len(keep))
	for _, id := range keep {
		allowed[id] = true
	}
	out := make([]types.CachedRecommendation, 0, len(keep))
	for _, r := range cached {
		if allowed[r.BookID] {
			out = append(out, r)
		}
	}
	return out
}

func (s *recommendationService) Compute(ctx context.Context, userID int64) ([]types.CachedRecommendation, error) {
	cands, err := s.build(ctx, userID, s.opts.Limit, s.opts.Mode)
	if err != nil {
		return nil, err
	}
	return types.ToCachedList(cands), nil
}

// prefetched is everything the pipeline reads before producing candidates.
type prefetched struct {
	preferred   []string
	blacklist   []int64
	recent      []*types.Interaction
	served      []int64
	servedBooks map[int64]*types.Book
	profile     types.UserInterestProfile
}

func (s *recommendationService) prefetch(ctx context.Context, userID int64, mode diversity.Mode) (*prefetched, error) {
	p := &prefetched{profile: types.NewUserInterestProfile(), servedBooks: map[int64]*types.Book{}}
	dbc := dbctx.Context{Ctx: ctx}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p.preferred, err = s.deps.Users.PreferredCategories(dbctx.Context{Ctx: gctx}, userID)
		return err
	})
	g.Go(func() error {
		var err error
		p.recent, err = s.deps.Interactions.ListRecentByUser(dbctx.Context{Ctx: gctx}, userID, historyTitleMax)
		return err
	})
	g.Go(func() error {
		p.blacklist = s.deps.Blacklist.Members(gctx, userID)
		return nil
	})
	g.Go(func() error {
		served, err := s.deps.History.Recent(dbctx.Context{Ctx: gctx}, userID)
		if err != nil {
			s.log.Warn("History read failed", "user_id", userID, "error", err)
			return nil
		}
		p.served = served
		return nil
	})
	if mode == diversity.ModeQuota {
		g.Go(func() error {
			p.profile = s.deps.Profiler.Profile(gctx, userID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(p.served) > 0 {
		window := p.served
		if size := s.deps.Diversity.WindowSize(); len(window) > size {
			window = window[len(window)-size:]
		}
		books, err := s.deps.Books.GetByIDs(dbc, window)
		if err != nil {
			s.log.Warn("History books read failed", "user_id", userID, "error", err)
		}
		for _, b := range books {
			p.servedBooks[b.ID] = b
		}
	}
	return p, nil
}

func (s *recommendationService) build(ctx context.Context, userID int64, limit int, mode diversity.Mode) (_ []types.Candidate, err error) {
	ctx, span := observability.StartSpan(ctx, "recommendation.build",
		attribute.Int64("user_id", userID),
		attribute.Int("limit", limit),
		attribute.String("mode", string(mode)),
	)
	defer func() { observability.EndSpan(span, err) }()

	p, err := s.prefetch(ctx, userID, mode)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(p.recent)+len(p.blacklist))
	var historyTitles []string
	for _, in := range p.recent {
		seen[in.BookID] = true
		if in.Book != nil && in.Book.Title != "" {
			historyTitles = append(historyTitles, in.Book.Title)
		}
	}
	for _, id := range p.blacklist {
		seen[id] = true
	}

	cands := s.searchCandidates(ctx, userID, seen, limit)
	for _, c := range cands {
		seen[c.BookID] = true
	}

	graphCands := s.graphCandidates(ctx, userID, p, seen, limit*s.opts.CandidateMultiplier)
	for _, c := range s.rerank(ctx, historyTitles, graphCands) {
		if seen[c.BookID] {
			continue
		}
		seen[c.BookID] = true
		cands = append(cands, c)
	}

	if len(cands) > 0 {
		cands = s.deps.Feedback.ApplySoftPenalty(ctx, userID, cands)
		cands = s.deps.Diversity.SlidingWindow(cands, p.served, p.servedBooks)
		cands = s.deps.Diversity.Apply(mode, cands, p.profile, limit)
	}

	if len(cands) < limit {
		exclude := make([]int64, 0, len(seen))
		for id := range seen {
			exclude = append(exclude, id)
		}
		cands = append(cands, s.popular(ctx, exclude, limit-len(cands), "Popular and highly rated right now")...)
	}
	if len(cands) > limit {
		cands = cands[:limit]
	}

	counts := map[string]int{}
	for _, c := range cands {
		counts[c.Source]++
	}
	for source, n := range counts {
		s.deps.Metrics.IncPipelineSource(source, n)
	}
	return cands, nil
}

// searchCandidates matches the user's latest queries against titles and
// authors, taking at most a third of the list.
func (s *recommendationService) searchCandidates(ctx context.Context, userID int64, seen map[int64]bool, limit int) []types.Candidate {
	dbc := dbctx.Context{Ctx: ctx}
	searches, err := s.deps.Searches.ListRecentByUser(dbc, userID, recentSearchMax)
	if err != nil {
		s.log.Warn("Search log read failed", "user_id", userID, "error", err)
		return nil
	}
	var out []types.Candidate
	taken := map[int64]bool{}
	for _, q := range searches {
		if len(out) >= limit/3 {
			break
		}
		books, err := s.deps.Books.Search(dbc, q.Query, searchMatchMax)
		if err != nil {
			s.log.Warn("Book search failed", "user_id", userID, "error", err)
			continue
		}
		for _, b := range books {
			if seen[b.ID] || taken[b.ID] {
				continue
			}
			taken[b.ID] = true
			out = append(out, types.Candidate{
				BookID:          b.ID,
				Title:           b.Title,
				Author:          b.Author,
				Category:        b.CategoryName(),
				PublicationYear: b.PublicationYear,
				Score:           searchScore,
				Reason:          fmt.Sprintf("Matches your recent search %q", q.Query),
				Tags:            []string{"search"},
				Source:          types.SourceSearch,
			})
		}
	}
	return out
}

func (s *recommendationService) graphCandidates(ctx context.Context, userID int64, p *prefetched, seen map[int64]bool, limit int) []types.Candidate {
	if s.deps.Graph == nil || !s.deps.Graph.Available() {
		return nil
	}
	raw, err := s.deps.Graph.Candidates(ctx, graph.CandidateQuery{
		UserID:              userID,
		PreferredCategories: p.preferred,
		Blacklist:           p.blacklist,
		Limit:               limit,
	})
	if err != nil {
		s.log.Warn("Graph candidates failed", "user_id", userID, "error", err)
		return nil
	}

	ids := make([]int64, 0, len(raw))
	for _, c := range raw {
		if !seen[c.BookID] {
			ids = append(ids, c.BookID)
		}
	}
	books, err := s.deps.Books.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		s.log.Warn("Candidate books read failed", "user_id", userID, "error", err)
		return nil
	}
	byID := make(map[int64]*types.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}

	out := make([]types.Candidate, 0, len(ids))
	taken := map[int64]bool{}
	for _, c := range raw {
		b := byID[c.BookID]
		if b == nil || seen[c.BookID] || taken[c.BookID] {
			continue
		}
		taken[c.BookID] = true
		c.Title = b.Title
		if c.Category == "" {
			c.Category = b.CategoryName()
		}
		if c.Author == "" {
			c.Author = b.Author
		}
		c.PublicationYear = b.PublicationYear
		out = append(out, c)
	}
	return s.deps.Blacklist.ApplyCategoryAuthorPenalty(ctx, userID, out, s.opts.CategoryAuthorPenalty)
}

// rerank asks the language model to pick and explain from the shortlist.
// Any failure passes the top graph candidates through unchanged.
func (s *recommendationService) rerank(ctx context.Context, history []string, cands []types.Candidate) []types.Candidate {
	if len(cands) == 0 {
		return nil
	}
	if s.deps.Reranker == nil {
		return s.passthrough(cands, "disabled")
	}
	shortlist := cands
	if len(shortlist) > s.opts.RerankShortlist {
		shortlist = shortlist[:s.opts.RerankShortlist]
	}
	in := make([]llm.Candidate, 0, len(shortlist))
	for _, c := range shortlist {
		in = append(in, llm.Candidate{
			Title:       c.Title,
			Author:      c.Author,
			Category:    c.Category,
			GraphReason: c.GraphReason,
			Source:      c.Source,
		})
	}

	refined, err := s.deps.Reranker.Refine(ctx, history, in)
	if err != nil {
		reason := "error"
		if llm.IsOpen(err) {
			reason = "breaker_open"
		}
		s.log.Warn("Rerank failed, passing candidates through", "reason", reason, "error", err)
		return s.passthrough(cands, reason)
	}

	out := make([]types.Candidate, 0, len(refined))
	used := map[int64]bool{}
	for _, r := range refined {
		c, ok := matchTitle(shortlist, r.BookTitle, used)
		if !ok {
			continue
		}
		used[c.BookID] = true
		if r.Score > 0 {
			c.Score = r.Score
		}
		c.Reason = r.Reason
		if c.Reason == "" {
			c.Reason = "Recommended for you: " + c.Title
		}
		c.Tags = []string{"ai", c.Source}
		out = append(out, c)
	}
	return out
}

func (s *recommendationService) passthrough(cands []types.Candidate, reason string) []types.Candidate {
	s.deps.Metrics.IncLLMFallback(reason)
	n := min(len(cands), s.opts.FallbackCount)
	out := make([]types.Candidate, 0, n)
	for _, c := range cands[:n] {
		c.Reason = "Recommended from your interests"
		c.Tags = []string{c.Source}
		out = append(out, c)
	}
	return out
}

// matchTitle finds the first unused candidate whose title contains, or is
// contained in, the returned title.
func matchTitle(cands []types.Candidate, title string, used map[int64]bool) (types.Candidate, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return types.Candidate{}, false
	}
	for _, c := range cands {
		if used[c.BookID] || c.Title == "" {
			continue
		}
		if strings.Contains(title, c.Title) || strings.Contains(c.Title, title) {
			return c, true
		}
	}
	return types.Candidate{}, false
}

func (s *recommendationService) popular(ctx context.Context, exclude []int64, n int, reason string) []types.Candidate {
	if n <= 0 {
		return nil
	}
	books, err := s.deps.Books.ListPopular(dbctx.Context{Ctx: ctx}, exclude, n)
	if err != nil {
		s.log.Warn("Popular fallback failed", "error", err)
		return nil
	}
	out := make([]types.Candidate, 0, len(books))
	for _, b := range books {
		out = append(out, types.Candidate{
			BookID:          b.ID,
			Title:           b.Title,
			Author:          b.Author,
			Category:        b.CategoryName(),
			PublicationYear: b.PublicationYear,
			Score:           popularScore,
			Reason:          reason,
			Tags:            []string{"popular"},
			Source:          types.SourcePopular,
		})
	}
	return out
}

// hydrate loads books for a cached list, dropping entries whose book is
// gone.
func (s *recommendationService) hydrate(ctx context.Context, cached []types.CachedRecommendation, limit int) ([]Recommendation, error) {
	if len(cached) > limit {
		cached = cached[:limit]
	}
	ids := make([]int64, 0, len(cached))
	for _, c := range cached {
		ids = append(ids, c.BookID)
	}
	books, err := s.deps.Books.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*types.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	out := make([]Recommendation, 0, len(cached))
	for _, c := range cached {
		b := byID[c.BookID]
		if b == nil {
			continue
		}
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, Recommendation{Book: b, Score: c.Score, Reason: c.Reason, Tags: tags})
	}
	return out, nil
}

func (s *recommendationService) ColdStart(ctx context.Context, categories, moods []string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = s.opts.Limit
	}
	mood := "explore"
	if len(moods) > 0 {
		mood = moods[0]
	}

	var cands []types.Candidate
	seen := map[int64]bool{}
	if s.deps.Graph != nil && s.deps.Graph.Available() && len(categories) > 0 {
		rows, err := s.deps.Graph.BooksInCategories(ctx, categories, limit*4)
		if err != nil {
			s.log.Warn("Cold start graph query failed", "error", err)
		}
		s.shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		ids := make([]int64, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.BookID)
		}
		books, err := s.deps.Books.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[int64]*types.Book, len(books))
		for _, b := range books {
			byID[b.ID] = b
		}
		for _, r := range rows {
			if len(cands) >= limit {
				break
			}
			b := byID[r.BookID]
			if b == nil || seen[r.BookID] {
				continue
			}
			seen[r.BookID] = true
			cands = append(cands, types.Candidate{
				BookID:   b.ID,
				Title:    b.Title,
				Author:   b.Author,
				Category: r.Category,
				Score:    coldStartScore,
				Reason:   fmt.Sprintf("Picked for your interest in %s and a %s mood", r.Category, mood),
				Tags:     append([]string{r.Category}, moods...),
				Source:   types.SourceColdStart,
			})
		}
	}

	if len(cands) < limit {
		exclude := make([]int64, 0, len(seen))
		for id := range seen {
			exclude = append(exclude, id)
		}
		cands = append(cands, s.popular(ctx, exclude, limit-len(cands), "A highly rated classic for new readers")...)
	}
	return s.hydrate(ctx, types.ToCachedList(cands), limit)
}

func (s *recommendationService) DiversityMetrics(ctx context.Context, userID int64, limit int) (diversity.Metrics, error) {
	recs, err := s.GetRecommendations(ctx, userID, limit, "", false)
	if err != nil {
		return diversity.Metrics{}, err
	}
	cands := make([]types.Candidate, 0, len(recs))
	for _, r := range recs {
		cands = append(cands, types.Candidate{
			BookID:          r.Book.ID,
			Author:          r.Book.Author,
			Category:        r.Book.CategoryName(),
			PublicationYear: r.Book.PublicationYear,
			Score:           r.Score,
		})
	}
	return diversity.ComputeMetrics(cands), nil
}
