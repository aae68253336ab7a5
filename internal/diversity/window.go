package diversity

import types "github.com/yungbote/bookrec-backend/internal/domain"

// SlidingWindow drops candidates served within the last Size items of
// history and halves the score once per saturated dimension: a category seen
// CategoryLimit times or an author seen AuthorLimit times in the window.
// books resolves history ids to metadata; ids it lacks still count as served.
func (r *Reranker) SlidingWindow(candidates []types.Candidate, history []int64, books map[int64]*types.Book) []types.Candidate {
	if len(history) == 0 {
		return candidates
	}
	w := r.opts.Window
	recent := history
	if len(recent) > w.Size {
		recent = recent[len(recent)-w.Size:]
	}

	served := make(map[int64]bool, len(recent))
	categories := map[string]int{}
	authors := map[string]int{}
	for _, id := range recent {
		served[id] = true
		b := books[id]
		if b == nil {
			continue
		}
		if name := b.CategoryName(); name != "" {
			categories[name]++
		}
		if b.Author != "" {
			authors[b.Author]++
		}
	}

	out := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if served[c.BookID] {
			continue
		}
		if c.Category != "" && categories[c.Category] >= w.CategoryLimit {
			c.Score *= 0.5
		}
		if c.Author != "" && authors[c.Author] >= w.AuthorLimit {
			c.Score *= 0.5
		}
		out = append(out, c)
	}
	return out
}

// WindowSize is the number of history entries SlidingWindow reads.
func (r *Reranker) WindowSize() int { return r.opts.Window.Size }
