package graph

import "context"

// Neighbours are the books a change to one book can ripple into.
type Neighbours struct {
	SameCategory  []int64
	SameAuthor    []int64
	Collaborative []int64
	Category      string
	Author        string
}

type NeighbourLimits struct {
	SameCategory  int
	SameAuthor    int
	Collaborative int
}

var DefaultNeighbourLimits = NeighbourLimits{SameCategory: 20, SameAuthor: 10, Collaborative: 10}

const extendedNeighboursCypher = `
MATCH (b:Book {id: $book_id})
OPTIONAL MATCH (b)-[:BELONGS_TO]->(cat:Category)
OPTIONAL MATCH (b)-[:WRITTEN_BY]->(author:Author)
WITH b, cat, author
OPTIONAL MATCH (cat)<-[:BELONGS_TO]-(sc:Book)
WHERE sc.id <> b.id
WITH b, cat, author, collect(DISTINCT sc.id)[0..$category_limit] AS same_category
OPTIONAL MATCH (author)<-[:WRITTEN_BY]-(sa:Book)
WHERE sa.id <> b.id
WITH b, cat, author, same_category, collect(DISTINCT sa.id)[0..$author_limit] AS same_author
OPTIONAL MATCH (b)<-[:CLICKED|RATED|COLLECTED]-(:User)-[:CLICKED|RATED|COLLECTED]->(cb:Book)
WHERE cb.id <> b.id
RETURN same_category,
       same_author,
       collect(DISTINCT cb.id)[0..$collab_limit] AS collaborative,
       cat.name AS category_name,
       author.name AS author_name
`

// ExtendedNeighbours returns same-category, same-author and co-interacted
// books for bookID, each capped by limits.
func (s *Store) ExtendedNeighbours(ctx context.Context, bookID int64, limits NeighbourLimits) (Neighbours, error) {
	records, err := s.collect(ctx, extendedNeighboursCypher, map[string]any{
		"book_id":        bookID,
		"category_limit": int64(limits.SameCategory),
		"author_limit":   int64(limits.SameAuthor),
		"collab_limit":   int64(limits.Collaborative),
	})
	if err != nil {
		return Neighbours{}, err
	}
	if len(records) == 0 {
		return Neighbours{}, ErrBookNotFound
	}
	rec := records[0]
	return Neighbours{
		SameCategory:  recInt64s(rec, "same_category"),
		SameAuthor:    recInt64s(rec, "same_author"),
		Collaborative: recInt64s(rec, "collaborative"),
		Category:      recString(rec, "category_name"),
		Author:        recString(rec, "author_name"),
	}, nil
}

const localNeighboursCypher = `
MATCH (b:Book {id: $book_id})
OPTIONAL MATCH (b)-[:BELONGS_TO]->(cat:Category)
OPTIONAL MATCH (cat)<-[:BELONGS_TO]-(related:Book)
WHERE related.id <> b.id
RETURN collect(DISTINCT related.id)[0..$limit] AS related, cat.name AS category_name
`

// LocalNeighbours returns up to limit books sharing bookID's category.
func (s *Store) LocalNeighbours(ctx context.Context, bookID int64, limit int) ([]int64, error) {
	records, err := s.collect(ctx, localNeighboursCypher, map[string]any{
		"book_id": bookID,
		"limit":   int64(limit),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrBookNotFound
	}
	return recInt64s(records[0], "related"), nil
}
