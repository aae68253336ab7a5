package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/pkg/httpx"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

// ErrEmptyResponse is returned when the model answered but selected nothing
// that could be parsed.
var ErrEmptyResponse = errors.New("llm: empty rerank response")

type Candidate struct {
	Title       string
	Author      string
	Category    string
	GraphReason string
	Source      string
}

type Refined struct {
	BookTitle string  `json:"book_title"`
	Reason    string  `json:"reason"`
	Score     float64 `json:"score"`
}

// Reranker reorders a candidate shortlist against a reading history,
// returning the selected titles with reasons and confidence scores.
type Reranker interface {
	Refine(ctx context.Context, history []string, candidates []Candidate) ([]Refined, error)
}

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type client struct {
	log        *logger.Logger
	metrics    *observability.Metrics
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewClient speaks the OpenAI-compatible chat completions API. An empty base
// URL means no reranker is configured.
func NewClient(opts Options, log *logger.Logger, metrics *observability.Metrics) (Reranker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, nil
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &client{
		log:        log.With("client", "LLMReranker"),
		metrics:    metrics,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

const systemPrompt = "You are an expert book recommender system. You are given a user's reading history and a list of candidate books identified by a knowledge graph."

func buildPrompt(history []string, candidates []Candidate) string {
	if len(history) > 10 {
		history = history[:10]
	}
	var b strings.Builder
	b.WriteString("User's Reading History: ")
	b.WriteString(strings.Join(history, ", "))
	b.WriteString("\n\nCandidate Books (retrieved from Knowledge Graph):\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- Title: %s, Author: %s, Category: %s, Graph Reason: %s\n",
			orUnknown(c.Title), orUnknown(c.Author), orUnknown(c.Category), orNone(c.GraphReason))
	}
	b.WriteString(`
Task:
1. Analyze the candidates and select the best matches for the user.
2. Re-rank them based on how well they fit the user's history.
3. Provide a short personalized reason for each selected book.
4. Assign a confidence score between 0.0 and 1.0.

Respond with a JSON object of the form:
{"recommendations": [{"book_title": string, "reason": string, "score": number}]}
`)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}

func (c *client) Refine(ctx context.Context, history []string, candidates []Candidate) ([]Refined, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(history, candidates)},
		},
		Temperature:    0.7,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	var resp chatResponse
	if err := c.do(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	out, err := parseRefined(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

// parseRefined tolerates prose or code fences around the JSON object.
func parseRefined(content string) ([]Refined, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("llm: no JSON object in response")
	}
	var body struct {
		Recommendations []Refined `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &body); err != nil {
		return nil, fmt.Errorf("llm: decode rerank: %w", err)
	}
	out := body.Recommendations[:0]
	for _, r := range body.Recommendations {
		r.BookTitle = strings.TrimSpace(r.BookTitle)
		if r.BookTitle == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	backoff := c.backoff
	start := time.Now()

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			c.metrics.ObserveLLMRequest(c.model, statusFromResp(resp, nil), time.Since(start))
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("llm decode error: %w", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			c.metrics.ObserveLLMRequest(c.model, statusFromResp(resp, err), time.Since(start))
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 5*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("LLM request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func statusFromResp(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if err != nil {
		return "error"
	}
	return "0"
}
