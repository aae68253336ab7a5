package graph

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/bookrec-backend/internal/platform/logger"
	"github.com/yungbote/bookrec-backend/internal/platform/neo4jdb"
)

var (
	// ErrUnavailable is returned by reads when no graph is configured.
	ErrUnavailable = errors.New("graph: unavailable")
	// ErrBookNotFound is returned when the queried book has no node.
	ErrBookNotFound = errors.New("graph: book not found")
)

// Store runs the book graph queries. A Store over a nil client is valid:
// writes become no-ops and reads report ErrUnavailable so callers fall back.
type Store struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewStore(client *neo4jdb.Client, baseLog *logger.Logger) *Store {
	return &Store{client: client, log: baseLog.With("component", "BookGraph")}
}

func (s *Store) Available() bool {
	return s != nil && s.client.Available()
}

func (s *Store) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
}

func (s *Store) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
}

// collect runs a read query and returns every record.
func (s *Store) collect(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := s.readSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

// write runs each statement in one write transaction, consuming results.
func (s *Store) write(ctx context.Context, stmts ...statement) error {
	if !s.Available() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			res, err := tx.Run(ctx, st.cypher, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

type statement struct {
	cypher string
	params map[string]any
}

// EnsureSchema creates the id constraints the queries rely on.
func (s *Store) EnsureSchema(ctx context.Context) {
	if !s.Available() {
		return
	}
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	// Best-effort schema init.
	for _, q := range []string{
		`CREATE CONSTRAINT book_id_unique IF NOT EXISTS FOR (b:Book) REQUIRE b.id IS UNIQUE`,
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT category_name_unique IF NOT EXISTS FOR (c:Category) REQUIRE c.name IS UNIQUE`,
		`CREATE CONSTRAINT author_name_unique IF NOT EXISTS FOR (a:Author) REQUIRE a.name IS UNIQUE`,
	} {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}
