package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

func chatReply(content string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return raw
}

func newTestClient(t *testing.T, url string, retries int) *client {
	t.Helper()
	r, err := NewClient(Options{BaseURL: url, Model: "test-model", Timeout: 2 * time.Second, MaxRetries: retries}, logger.Nop(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c := r.(*client)
	c.backoff = time.Millisecond
	return c
}

func TestNewClientWithoutBaseURL(t *testing.T) {
	r, err := NewClient(Options{}, logger.Nop(), nil)
	if err != nil || r != nil {
		t.Fatalf("expected nil reranker, got %v, %v", r, err)
	}
}

func TestRefineParsesRecommendations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path=%s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		if !strings.Contains(req.Messages[1].Content, "Title: Dune") {
			t.Errorf("prompt missing candidate: %s", req.Messages[1].Content)
		}
		_, _ = w.Write(chatReply("```json\n{\"recommendations\":[{\"book_title\":\"Dune\",\"reason\":\"epic\",\"score\":0.9},{\"book_title\":\" \",\"score\":0.1}]}\n```"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	out, err := c.Refine(context.Background(), []string{"Foundation"}, []Candidate{{Title: "Dune", Author: "Herbert"}})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if len(out) != 1 || out[0].BookTitle != "Dune" || out[0].Score != 0.9 {
		t.Fatalf("unexpected refined %+v", out)
	}
}

func TestRefineEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatReply(`{"recommendations":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	if _, err := c.Refine(context.Background(), nil, []Candidate{{Title: "A"}}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err=%v want ErrEmptyResponse", err)
	}
}

func TestRefineRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(chatReply(`{"recommendations":[{"book_title":"A","reason":"r","score":0.5}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	out, err := c.Refine(context.Background(), nil, []Candidate{{Title: "A"}})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if len(out) != 1 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("out=%v calls=%d", out, calls)
	}
}

func TestRefineDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Refine(context.Background(), nil, []Candidate{{Title: "A"}})
	var he *httpError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
		t.Fatalf("err=%v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestParseRefined(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{name: "plain", in: `{"recommendations":[{"book_title":"A","score":1}]}`, want: 1},
		{name: "prose around", in: "Sure! {\"recommendations\":[{\"book_title\":\"A\"},{\"book_title\":\"B\"}]} done", want: 2},
		{name: "no object", in: "sorry", wantErr: true},
		{name: "broken", in: `{"recommendations":[`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := parseRefined(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr && len(out) != tt.want {
				t.Fatalf("len=%d want %d", len(out), tt.want)
			}
		})
	}
}
