package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
)

// PostgresSchema creates the tables and the match_documents function used
// for server-side similarity search. %d is the embedding dimensionality.
const PostgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
    id UUID PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT 'manual',
    embedding vector(%d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_history (
    id UUID PRIMARY KEY,
    session_id TEXT NOT NULL DEFAULT '',
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    relevant_documents JSONB NOT NULL DEFAULT '[]',
    mode TEXT NOT NULL DEFAULT '',
    image_types JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE OR REPLACE FUNCTION match_documents(
    query_embedding vector(%d),
    match_threshold float,
    match_count int
)
RETURNS TABLE (id UUID, title TEXT, content TEXT, source TEXT, similarity float)
LANGUAGE sql STABLE
AS $$
    SELECT d.id, d.title, d.content, d.source,
           1 - (d.embedding <=> query_embedding) AS similarity
    FROM documents d
    WHERE d.embedding IS NOT NULL
      AND 1 - (d.embedding <=> query_embedding) >= match_threshold
    ORDER BY d.embedding <=> query_embedding
    LIMIT match_count;
$$;
`

// PostgresStore keeps documents in Postgres with pgvector and searches them
// through the match_documents SQL function.
type PostgresStore struct {
	pool *pgxpool.Pool
	dims int
}

var _ knowledge.Catalog = (*PostgresStore)(nil)

const pgDocumentColumns = `id::text, title, content, source, embedding, created_at`

// OpenPostgres connects to dsn and registers the vector type on every
// connection. When migrate is set the schema is applied.
func OpenPostgres(ctx context.Context, dsn string, dims int, migrate bool) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	if migrate {
		// The vector type must exist before AfterConnect can register it.
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		_, err = conn.Exec(ctx, fmt.Sprintf(PostgresSchema, dims, dims))
		conn.Close(ctx)
		if err != nil {
			return nil, fmt.Errorf("applying postgres schema: %w", err)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresStore{pool: pool, dims: dims}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) checkDims(v []float32) error {
	if len(v) == 0 || s.dims == 0 || len(v) == s.dims {
		return nil
	}
	return fmt.Errorf("%w: got %d, want %d", knowledge.ErrDimensionMismatch, len(v), s.dims)
}

func scanPgDocuments(rows pgx.Rows) ([]knowledge.Document, error) {
	defer rows.Close()
	var docs []knowledge.Document
	for rows.Next() {
		var d knowledge.Document
		var embedding *pgvector.Vector
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Source, &embedding, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if embedding != nil {
			d.Embedding = embedding.Slice()
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) SearchIndexed(ctx context.Context, vector []float32, threshold float64, limit int) ([]knowledge.Match, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE embedding IS NOT NULL`).Scan(&n); err != nil {
		return nil, fmt.Errorf("%w: %v", knowledge.ErrIndexUnavailable, err)
	}
	if n == 0 {
		return nil, knowledge.ErrIndexUnavailable
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, title, content, source, similarity FROM match_documents($1, $2, $3)`,
		pgvector.NewVector(vector), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", knowledge.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	matches := []knowledge.Match{}
	for rows.Next() {
		var d knowledge.Document
		var sim float64
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Source, &sim); err != nil {
			return nil, fmt.Errorf("%w: %v", knowledge.ErrIndexUnavailable, err)
		}
		matches = append(matches, knowledge.MatchFromDocument(d, sim))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", knowledge.ErrIndexUnavailable, err)
	}
	return matches, nil
}

func (s *PostgresStore) ScanWithEmbeddings(ctx context.Context) ([]knowledge.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgDocumentColumns+` FROM documents WHERE embedding IS NOT NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("scanning embedded documents: %w", err)
	}
	return scanPgDocuments(rows)
}

func (s *PostgresStore) ScanAny(ctx context.Context, limit int) ([]knowledge.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgDocumentColumns+` FROM documents ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("scanning documents: %w", err)
	}
	return scanPgDocuments(rows)
}

func (s *PostgresStore) AppendHistory(ctx context.Context, e knowledge.HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	docs := e.Documents
	if docs == nil {
		docs = []knowledge.DocumentRef{}
	}
	docsJSON, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encoding relevant documents: %w", err)
	}
	types := e.ImageTypes
	if types == nil {
		types = []string{}
	}
	typesJSON, err := json.Marshal(types)
	if err != nil {
		return fmt.Errorf("encoding image types: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_history (id, session_id, question, answer, relevant_documents, mode, image_types, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.SessionID, e.Question, e.Answer, string(docsJSON), e.Mode, string(typesJSON), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting chat history: %w", err)
	}
	return nil
}

func nullableVector(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc knowledge.Document) (*knowledge.Document, error) {
	if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.Content) == "" {
		return nil, knowledge.ErrInvalidDocument
	}
	if err := s.checkDims(doc.Embedding); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Source == "" {
		doc.Source = knowledge.DefaultSource
	}
	doc.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, title, content, source, embedding, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.Title, doc.Content, doc.Source, nullableVector(doc.Embedding), doc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}
	return &doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]knowledge.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, title, content, source, NULL::vector, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return scanPgDocuments(rows)
}

func (s *PostgresStore) FindByTitle(ctx context.Context, title string) (*knowledge.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgDocumentColumns+` FROM documents WHERE title = $1 LIMIT 1`, title)
	if err != nil {
		return nil, fmt.Errorf("finding document by title: %w", err)
	}
	docs, err := scanPgDocuments(rows)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return &docs[0], nil
}

func (s *PostgresStore) ListMissingEmbeddings(ctx context.Context) ([]knowledge.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgDocumentColumns+` FROM documents WHERE embedding IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing documents without embeddings: %w", err)
	}
	return scanPgDocuments(rows)
}

func (s *PostgresStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", knowledge.ErrDimensionMismatch)
	}
	if err := s.checkDims(embedding); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE documents SET embedding = $1 WHERE id = $2`, pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*knowledge.Stats, error) {
	var st knowledge.Stats
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(embedding) FROM documents`).Scan(&st.Documents, &st.WithEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+pgDocumentColumns+` FROM documents ORDER BY created_at DESC LIMIT 3`)
	if err != nil {
		return nil, fmt.Errorf("sampling documents: %w", err)
	}
	if st.Sample, err = scanPgDocuments(rows); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM (SELECT 1 FROM chat_history ORDER BY created_at DESC LIMIT $1) recent`,
		recentHistoryWindow).Scan(&st.RecentHistory)
	if err != nil {
		return nil, fmt.Errorf("counting chat history: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM documents LIMIT 1`).Scan(&one)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", knowledge.ErrStoreUnavailable, err)
	}
	return nil
}
