package graph

import (
	"context"
	"fmt"
	"time"

	types "github.com/yungbote/bookrec-backend/internal/domain"
)

// interactionRels maps interaction types to the relationship the candidate
// queries traverse. Types without an entry are not mirrored.
var interactionRels = map[string]string{
	types.InteractionClick:   "CLICKED",
	types.InteractionCollect: "COLLECTED",
	types.InteractionRating:  "RATED",
}

// SyncInteraction mirrors an interaction as a relationship. rating is only
// read for RATED edges.
func (s *Store) SyncInteraction(ctx context.Context, userID, bookID int64, interactionType string, rating *int) error {
	rel, ok := interactionRels[interactionType]
	if !ok || userID <= 0 || bookID <= 0 {
		return nil
	}
	params := map[string]any{
		"user_id": userID,
		"book_id": bookID,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	cypher := fmt.Sprintf(`
MERGE (u:User {id: $user_id})
WITH u
MATCH (b:Book {id: $book_id})
MERGE (u)-[r:%s]->(b)
SET r.timestamp = $ts
`, rel)
	if rel == "RATED" && rating != nil {
		params["score"] = int64(*rating)
		cypher += "SET r.score = $score\n"
	}
	return s.write(ctx, statement{cypher: cypher, params: params})
}

// SyncDislike records an active negative feedback as a DISLIKES edge so the
// candidate query can exclude it.
func (s *Store) SyncDislike(ctx context.Context, userID, bookID int64, feedbackType string, strength int) error {
	if userID <= 0 || bookID <= 0 {
		return nil
	}
	return s.write(ctx, statement{
		cypher: `
MERGE (u:User {id: $user_id})
WITH u
MATCH (b:Book {id: $book_id})
MERGE (u)-[r:DISLIKES]->(b)
SET r.type = $type, r.strength = $strength, r.timestamp = $ts
`,
		params: map[string]any{
			"user_id":  userID,
			"book_id":  bookID,
			"type":     feedbackType,
			"strength": int64(strength),
			"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
}

func (s *Store) RemoveDislike(ctx context.Context, userID, bookID int64) error {
	if userID <= 0 || bookID <= 0 {
		return nil
	}
	return s.write(ctx, statement{
		cypher: `MATCH (:User {id: $user_id})-[r:DISLIKES]->(:Book {id: $book_id}) DELETE r`,
		params: map[string]any{"user_id": userID, "book_id": bookID},
	})
}

// SyncBooks upserts book nodes with their category and author edges.
func (s *Store) SyncBooks(ctx context.Context, books []*types.Book) error {
	rows := make([]map[string]any, 0, len(books))
	for _, b := range books {
		if b == nil || b.ID <= 0 {
			continue
		}
		rows = append(rows, map[string]any{
			"id":       b.ID,
			"title":    b.Title,
			"isbn":     b.ISBN,
			"author":   b.Author,
			"category": b.CategoryName(),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.write(ctx,
		statement{
			cypher: `
UNWIND $rows AS r
MERGE (b:Book {id: r.id})
SET b.title = r.title, b.isbn = r.isbn
`,
			params: map[string]any{"rows": rows},
		},
		statement{
			cypher: `
UNWIND $rows AS r
WITH r WHERE r.author <> ''
MATCH (b:Book {id: r.id})
MERGE (a:Author {name: r.author})
MERGE (b)-[:WRITTEN_BY]->(a)
`,
			params: map[string]any{"rows": rows},
		},
		statement{
			cypher: `
UNWIND $rows AS r
WITH r WHERE r.category <> ''
MATCH (b:Book {id: r.id})
MERGE (c:Category {name: r.category})
MERGE (b)-[:BELONGS_TO]->(c)
`,
			params: map[string]any{"rows": rows},
		},
	)
}

// SyncUsers upserts user nodes with the demographic fields the candidate
// query compares.
func (s *Store) SyncUsers(ctx context.Context, users []*types.User) error {
	rows := make([]map[string]any, 0, len(users))
	for _, u := range users {
		if u == nil || u.ID <= 0 {
			continue
		}
		rows = append(rows, map[string]any{
			"id":       u.ID,
			"username": u.Username,
			"gender":   u.Gender,
			"age":      int64(u.Age),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.write(ctx, statement{
		cypher: `
UNWIND $rows AS r
MERGE (u:User {id: r.id})
SET u.username = r.username, u.gender = r.gender, u.age = r.age
`,
		params: map[string]any{"rows": rows},
	})
}
