package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/bookrec-backend/internal/diversity"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	apperr "github.com/yungbote/bookrec-backend/internal/pkg/errors"
	"github.com/yungbote/bookrec-backend/internal/services"
)

type fakeRecs struct {
	lastUser    int64
	lastLimit   int
	lastMode    diversity.Mode
	lastRefresh bool
	err         error
}

func (f *fakeRecs) GetRecommendations(_ context.Context, userID int64, limit int, mode diversity.Mode, refresh bool) ([]services.Recommendation, error) {
	f.lastUser, f.lastLimit, f.lastMode, f.lastRefresh = userID, limit, mode, refresh
	if f.err != nil {
		return nil, f.err
	}
	return []services.Recommendation{{Book: &types.Book{ID: 3, Title: "Dune"}, Score: 0.9, Reason: "because", Tags: []string{"scifi"}}}, nil
}

func (f *fakeRecs) Compute(context.Context, int64) ([]types.CachedRecommendation, error) {
	return nil, nil
}

func (f *fakeRecs) ColdStart(_ context.Context, categories, moods []string, limit int) ([]services.Recommendation, error) {
	f.lastLimit = limit
	return []services.Recommendation{{Book: &types.Book{ID: 1}, Tags: append(categories, moods...)}}, nil
}

func (f *fakeRecs) DiversityMetrics(_ context.Context, userID int64, limit int) (diversity.Metrics, error) {
	f.lastUser, f.lastLimit = userID, limit
	return diversity.Metrics{CategoryEntropy: 1, OverallScore: 0.5}, f.err
}

type fakeFeedback struct {
	services.NegativeFeedbackService
	submitted *types.NegativeFeedback
	err       error
}

func (f *fakeFeedback) Submit(_ context.Context, userID, bookID int64, feedbackType, reason string, strength int) (*types.NegativeFeedback, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = &types.NegativeFeedback{ID: 1, UserID: userID, BookID: bookID, FeedbackType: feedbackType, Reason: reason, Strength: strength, IsActive: true}
	return f.submitted, nil
}

func (f *fakeFeedback) Remove(_ context.Context, userID, bookID int64) (bool, error) {
	return bookID == 42, nil
}

func (f *fakeFeedback) Stats(_ context.Context, userID int64) (*services.FeedbackStats, error) {
	return &services.FeedbackStats{TotalFeedbacks: 2, FeedbackByType: map[string]int{"not_interested": 2}}, nil
}

type fakeInteractions struct {
	last services.InteractionInput
	err  error
}

func (f *fakeInteractions) RecordInteraction(_ context.Context, userID int64, in services.InteractionInput) (*services.InteractionResult, error) {
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return &services.InteractionResult{Interaction: &types.Interaction{ID: 9, UserID: userID, BookID: in.BookID, InteractionType: in.InteractionType}, Published: true}, nil
}

func (f *fakeInteractions) RecordExposure(_ context.Context, userID int64, bookIDs []int64) ([]services.DetectResult, error) {
	return []services.DetectResult{{Type: types.FeedbackImplicitNoClick, Strength: 1}}, nil
}

func (f *fakeInteractions) RecordSearch(_ context.Context, userID int64, query string) (*types.SearchLog, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query", apperr.ErrInvalidArgument)
	}
	return &types.SearchLog{ID: 5, UserID: userID, Query: query}, nil
}

type testServer struct {
	engine *gin.Engine
	recs   *fakeRecs
	fb     *fakeFeedback
	ia     *fakeInteractions
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)
	s := &testServer{engine: gin.New(), recs: &fakeRecs{}, fb: &fakeFeedback{}, ia: &fakeInteractions{}}
	rh := NewRecommendationHandler(s.recs)
	fh := NewFeedbackHandler(s.fb)
	ih := NewInteractionHandler(s.ia)
	s.engine.GET("/api/recommendations/:user_id", rh.GetRecommendations)
	s.engine.GET("/api/recommendations/:user_id/diversity", rh.DiversityMetrics)
	s.engine.POST("/api/recommendations/cold-start", rh.ColdStart)
	s.engine.POST("/api/users/:user_id/negative-feedback", fh.Submit)
	s.engine.GET("/api/users/:user_id/negative-feedback/stats", fh.Stats)
	s.engine.DELETE("/api/users/:user_id/negative-feedback/:book_id", fh.Remove)
	s.engine.POST("/api/users/:user_id/interactions", ih.RecordInteraction)
	s.engine.POST("/api/users/:user_id/exposures", ih.RecordExposure)
	s.engine.POST("/api/users/:user_id/searches", ih.RecordSearch)
	return s
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestGetRecommendations(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodGet, "/api/recommendations/7?limit=5&diversity=MMR&refresh=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if s.recs.lastUser != 7 || s.recs.lastLimit != 5 || s.recs.lastMode != diversity.ModeMMR || !s.recs.lastRefresh {
		t.Fatalf("service called with %+v", s.recs)
	}
	body := decode(t, rec)
	if body["count"].(float64) != 1 {
		t.Fatalf("body = %v", body)
	}

	s.do(http.MethodGet, "/api/recommendations/7", nil)
	if s.recs.lastMode != "" || s.recs.lastRefresh {
		t.Fatalf("defaults should pass through empty, got mode=%q refresh=%v", s.recs.lastMode, s.recs.lastRefresh)
	}
}

func TestGetRecommendationsErrors(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		svcErr error
		status int
	}{
		{"bad user", "/api/recommendations/abc", nil, http.StatusBadRequest},
		{"zero user", "/api/recommendations/0", nil, http.StatusBadRequest},
		{"bad limit", "/api/recommendations/1?limit=-1", nil, http.StatusBadRequest},
		{"limit too large", "/api/recommendations/1?limit=1000", nil, http.StatusBadRequest},
		{"bad mode", "/api/recommendations/1?diversity=random", nil, http.StatusBadRequest},
		{"unknown user", "/api/recommendations/1", fmt.Errorf("user 1: %w", apperr.ErrNotFound), http.StatusNotFound},
		{"store down", "/api/recommendations/1", fmt.Errorf("books: %w", apperr.ErrUnavailable), http.StatusServiceUnavailable},
		{"other failure", "/api/recommendations/1", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer()
			s.recs.err = tc.svcErr
			rec := s.do(http.MethodGet, tc.path, nil)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d body=%s", rec.Code, tc.status, rec.Body)
			}
			body := decode(t, rec)
			if _, ok := body["error"]; !ok {
				t.Fatalf("missing error envelope: %v", body)
			}
		})
	}
}

func TestColdStartAndDiversity(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodPost, "/api/recommendations/cold-start", gin.H{"categories": []string{"scifi"}, "moods": []string{"calm"}})
	if rec.Code != http.StatusOK || s.recs.lastLimit != 10 {
		t.Fatalf("cold start status=%d limit=%d", rec.Code, s.recs.lastLimit)
	}
	if rec := s.do(http.MethodPost, "/api/recommendations/cold-start", gin.H{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing categories status = %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/recommendations/4/diversity?limit=20", nil)
	if rec.Code != http.StatusOK || s.recs.lastUser != 4 || s.recs.lastLimit != 20 {
		t.Fatalf("diversity status=%d recs=%+v", rec.Code, s.recs)
	}
	metrics := decode(t, rec)["metrics"].(map[string]any)
	if metrics["overall_score"].(float64) != 0.5 {
		t.Fatalf("metrics = %v", metrics)
	}
}

func TestFeedbackEndpoints(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodPost, "/api/users/7/negative-feedback", gin.H{"book_id": 42, "feedback_type": "wrong_category", "reason": "too violent"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d body=%s", rec.Code, rec.Body)
	}
	if s.fb.submitted.Strength != 1 || s.fb.submitted.Reason != "too violent" || s.fb.submitted.UserID != 7 {
		t.Fatalf("submitted = %+v", s.fb.submitted)
	}
	if rec := s.do(http.MethodPost, "/api/users/7/negative-feedback", gin.H{"feedback_type": "wrong_category"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing book_id status = %d", rec.Code)
	}

	s.fb.err = fmt.Errorf("%w: unknown feedback_type", apperr.ErrInvalidArgument)
	if rec := s.do(http.MethodPost, "/api/users/7/negative-feedback", gin.H{"book_id": 42, "feedback_type": "meh"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid type status = %d", rec.Code)
	}

	rec = s.do(http.MethodDelete, "/api/users/7/negative-feedback/42", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["removed"] != true {
		t.Fatalf("remove status=%d body=%s", rec.Code, rec.Body)
	}
	rec = s.do(http.MethodGet, "/api/users/7/negative-feedback/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	stats := decode(t, rec)["stats"].(map[string]any)
	if stats["total_feedbacks"].(float64) != 2 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestInteractionEndpoints(t *testing.T) {
	s := newTestServer()
	rec := s.do(http.MethodPost, "/api/users/7/interactions", gin.H{"book_id": 3, "interaction_type": "rating", "rating": 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("interaction status = %d body=%s", rec.Code, rec.Body)
	}
	if s.ia.last.BookID != 3 || s.ia.last.Rating == nil || *s.ia.last.Rating != 2 {
		t.Fatalf("input = %+v", s.ia.last)
	}

	s.ia.err = fmt.Errorf("book 99: %w", apperr.ErrNotFound)
	if rec := s.do(http.MethodPost, "/api/users/7/interactions", gin.H{"book_id": 99, "interaction_type": "click"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown book status = %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api/users/7/exposures", gin.H{"book_ids": []int64{1, 2}})
	if rec.Code != http.StatusOK || decode(t, rec)["recorded"].(float64) != 2 {
		t.Fatalf("exposure status=%d body=%s", rec.Code, rec.Body)
	}

	rec = s.do(http.MethodPost, "/api/users/7/searches", gin.H{"query": "dune"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("search status = %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/api/users/7/searches", gin.H{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty search status = %d", rec.Code)
	}
}
