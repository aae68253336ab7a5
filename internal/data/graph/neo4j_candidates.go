package graph

import (
	"context"

	types "github.com/yungbote/bookrec-backend/internal/domain"
)

type CandidateQuery struct {
	UserID              int64
	PreferredCategories []string
	Blacklist           []int64
	Limit               int
}

// Candidates are scored from four paths: shared category/author with books
// the user touched, co-interaction by peers, preferred categories, and users
// of the same gender within five years of age.
const candidatesCypher = `
MATCH (u:User {id: $user_id})

OPTIONAL MATCH (u)-[:CLICKED|RATED|COLLECTED]->(b:Book)-[:BELONGS_TO|WRITTEN_BY]->(node)<-[:BELONGS_TO|WRITTEN_BY]-(rec_content:Book)
WHERE NOT (u)-[:CLICKED|RATED|COLLECTED]->(rec_content)
  AND NOT (u)-[:DISLIKES]->(rec_content)
  AND NOT rec_content.id IN $blacklist

OPTIONAL MATCH (u)-[:CLICKED|RATED|COLLECTED]->(b2:Book)<-[:CLICKED|RATED|COLLECTED]-(peer:User)-[:CLICKED|RATED|COLLECTED]->(rec_collab:Book)
WHERE NOT (u)-[:CLICKED|RATED|COLLECTED]->(rec_collab)
  AND NOT (u)-[:DISLIKES]->(rec_collab)
  AND peer.id <> u.id
  AND NOT rec_collab.id IN $blacklist

OPTIONAL MATCH (rec_pref:Book)-[:BELONGS_TO]->(c_pref:Category)
WHERE c_pref.name IN $pref_cats
  AND NOT (u)-[:CLICKED|RATED|COLLECTED]->(rec_pref)
  AND NOT (u)-[:DISLIKES]->(rec_pref)
  AND NOT rec_pref.id IN $blacklist

OPTIONAL MATCH (peer_demog:User)
WHERE peer_demog.id <> u.id
  AND peer_demog.gender = u.gender
  AND abs(peer_demog.age - u.age) <= 5
OPTIONAL MATCH (peer_demog)-[:CLICKED|RATED|COLLECTED]->(rec_demog:Book)
WHERE NOT (u)-[:CLICKED|RATED|COLLECTED]->(rec_demog)
  AND NOT (u)-[:DISLIKES]->(rec_demog)
  AND NOT rec_demog.id IN $blacklist

WITH rec_content, rec_collab, rec_pref, rec_demog, node, c_pref,
     count(peer) AS peer_strength, count(peer_demog) AS demog_strength

WITH
  CASE
    WHEN rec_collab IS NOT NULL THEN rec_collab
    WHEN rec_demog IS NOT NULL THEN rec_demog
    WHEN rec_pref IS NOT NULL THEN rec_pref
    ELSE rec_content
  END AS final_rec,
  CASE
    WHEN rec_collab IS NOT NULL THEN 'collab'
    WHEN rec_demog IS NOT NULL THEN 'demog'
    WHEN rec_pref IS NOT NULL THEN 'pref'
    ELSE 'content'
  END AS source_type,
  node, peer_strength, demog_strength, c_pref
WHERE final_rec IS NOT NULL

OPTIONAL MATCH (final_rec)<-[r:RATED]-()
WITH final_rec, source_type, node, peer_strength, demog_strength, c_pref, avg(r.score) AS avg_rating

OPTIONAL MATCH (final_rec)-[:BELONGS_TO]->(cat:Category)
OPTIONAL MATCH (final_rec)-[:WRITTEN_BY]->(author:Author)

RETURN DISTINCT final_rec.id AS book_id,
       final_rec.title AS title,
       source_type,
       CASE
         WHEN source_type = 'content' AND node IS NOT NULL THEN node.name
         WHEN source_type = 'pref' AND c_pref IS NOT NULL THEN c_pref.name
         WHEN source_type = 'demog' THEN toString(demog_strength)
         ELSE toString(peer_strength)
       END AS reason_val,
       1.0 +
       (CASE WHEN avg_rating IS NOT NULL THEN avg_rating * 0.5 ELSE 0 END) +
       (CASE WHEN source_type = 'collab' THEN 3 + (peer_strength * 0.5) ELSE 0 END) +
       (CASE WHEN source_type = 'demog' THEN 2.5 + (demog_strength * 0.3) ELSE 0 END) +
       (CASE WHEN source_type = 'pref' THEN 3.5 ELSE 0 END) AS score,
       cat.name AS category_name,
       author.name AS author_name
ORDER BY score DESC
LIMIT $limit
`

// Candidates returns scored, de-duplicated graph candidates. Book metadata
// beyond title, category and author is left for the caller to hydrate.
func (s *Store) Candidates(ctx context.Context, q CandidateQuery) ([]types.Candidate, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	prefs := q.PreferredCategories
	if prefs == nil {
		prefs = []string{}
	}
	blacklist := q.Blacklist
	if blacklist == nil {
		blacklist = []int64{}
	}
	records, err := s.collect(ctx, candidatesCypher, map[string]any{
		"user_id":   q.UserID,
		"pref_cats": prefs,
		"blacklist": blacklist,
		"limit":     int64(q.Limit),
	})
	if err != nil {
		return nil, err
	}

	out := make([]types.Candidate, 0, len(records))
	seen := map[int64]bool{}
	for _, rec := range records {
		id := recInt64(rec, "book_id")
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, types.Candidate{
			BookID:      id,
			Title:       recString(rec, "title"),
			Category:    recString(rec, "category_name"),
			Author:      recString(rec, "author_name"),
			Score:       recFloat(rec, "score"),
			Source:      recString(rec, "source_type"),
			GraphReason: recString(rec, "reason_val"),
		})
	}
	return out, nil
}

type CategoryBook struct {
	BookID   int64
	Category string
}

const booksInCategoriesCypher = `
MATCH (b:Book)-[:BELONGS_TO]->(c:Category)
WHERE c.name IN $categories
RETURN b.id AS book_id, c.name AS category_name
LIMIT $limit
`

// BooksInCategories backs cold-start recommendations.
func (s *Store) BooksInCategories(ctx context.Context, categories []string, limit int) ([]CategoryBook, error) {
	if len(categories) == 0 || limit <= 0 {
		return nil, nil
	}
	records, err := s.collect(ctx, booksInCategoriesCypher, map[string]any{
		"categories": categories,
		"limit":      int64(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]CategoryBook, 0, len(records))
	for _, rec := range records {
		if id := recInt64(rec, "book_id"); id != 0 {
			out = append(out, CategoryBook{BookID: id, Category: recString(rec, "category_name")})
		}
	}
	return out, nil
}
