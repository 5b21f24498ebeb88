package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/kbchat/internal/db"
	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/vectordb"
)

// recentHistoryWindow bounds the history count reported by Stats.
const recentHistoryWindow = 10

// SQLiteStore keeps documents and chat history in SQLite. Native similarity
// search is delegated to an optional vectordb.Index kept in sync on writes.
type SQLiteStore struct {
	db    *db.DB
	index vectordb.Index
	dims  int
}

// NewSQLiteStore creates a store. index may be nil, in which case
// SearchIndexed always reports knowledge.ErrIndexUnavailable. dims is the
// required embedding length; 0 disables the check.
func NewSQLiteStore(database *db.DB, index vectordb.Index, dims int) *SQLiteStore {
	return &SQLiteStore{db: database, index: index, dims: dims}
}

var _ knowledge.Catalog = (*SQLiteStore)(nil)

const documentColumns = `id, title, content, source, embedding, created_at`

func scanDocument(row interface{ Scan(...any) error }) (knowledge.Document, error) {
	var d knowledge.Document
	var embedding sql.NullString
	if err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Source, &embedding, &d.CreatedAt); err != nil {
		return d, err
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &d.Embedding); err != nil {
			return d, fmt.Errorf("decoding embedding of %s: %w", d.ID, err)
		}
	}
	return d, nil
}

func (s *SQLiteStore) queryDocuments(ctx context.Context, query string, args ...any) ([]knowledge.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []knowledge.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func encodeEmbedding(v []float32) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SQLiteStore) checkDims(v []float32) error {
	if len(v) == 0 || s.dims == 0 || len(v) == s.dims {
		return nil
	}
	return fmt.Errorf("%w: got %d, want %d", knowledge.ErrDimensionMismatch, len(v), s.dims)
}

func (s *SQLiteStore) countEmbedded(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE embedding IS NOT NULL`).Scan(&n)
	return n, err
}

// ensureIndexed resyncs the index when it holds fewer entries than there
// are embedded rows, which happens when another process wrote the table.
// An index that is still behind cannot answer for the whole corpus.
func (s *SQLiteStore) ensureIndexed(ctx context.Context, embedded int) error {
	indexed, err := s.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", knowledge.ErrIndexUnavailable, err)
	}
	if indexed >= embedded {
		return nil
	}
	if _, err := s.SyncIndex(ctx); err != nil {
		return fmt.Errorf("%w: %v", knowledge.ErrIndexUnavailable, err)
	}
	if indexed, err = s.index.Count(ctx); err != nil || indexed < embedded {
		return fmt.Errorf("%w: index holds %d of %d embedded documents", knowledge.ErrIndexUnavailable, indexed, embedded)
	}
	return nil
}

// SearchIndexed queries the native index and joins the hits back to their
// documents, preserving the index order.
func (s *SQLiteStore) SearchIndexed(ctx context.Context, vector []float32, threshold float64, limit int) ([]knowledge.Match, error) {
	if s.index == nil {
		return nil, knowledge.ErrIndexUnavailable
	}
	n, err := s.countEmbedded(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", knowledge.ErrIndexUnavailable, err)
	}
	if n == 0 {
		return nil, knowledge.ErrIndexUnavailable
	}
	if err := s.ensureIndexed(ctx, n); err != nil {
		return nil, err
	}

	hits, err := s.index.Query(ctx, vector, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", knowledge.ErrIndexUnavailable, err)
	}
	if len(hits) == 0 {
		return []knowledge.Match{}, nil
	}

	ids := make([]any, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	docs, err := s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return nil, fmt.Errorf("loading indexed documents: %w", err)
	}
	byID := make(map[string]knowledge.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	matches := make([]knowledge.Match, 0, len(hits))
	for _, h := range hits {
		d, ok := byID[h.ID]
		if !ok {
			continue
		}
		matches = append(matches, knowledge.MatchFromDocument(d, h.Similarity))
	}
	return matches, nil
}

func (s *SQLiteStore) ScanWithEmbeddings(ctx context.Context) ([]knowledge.Document, error) {
	docs, err := s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE embedding IS NOT NULL ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("scanning embedded documents: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) ScanAny(ctx context.Context, limit int) ([]knowledge.Document, error) {
	docs, err := s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("scanning documents: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, e knowledge.HistoryEntry) error {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_history (id, session_id, question, answer, relevant_documents, mode, image_types, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Question, e.Answer, string(docsJSON), e.Mode, string(typesJSON), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting chat history: %w", err)
	}
	return nil
}

// History returns the entries of a session, oldest first.
func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]knowledge.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, question, answer, relevant_documents, mode, image_types, created_at
		 FROM chat_history WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing chat history: %w", err)
	}
	defer rows.Close()

	var entries []knowledge.HistoryEntry
	for rows.Next() {
		var e knowledge.HistoryEntry
		var docsJSON, typesJSON string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Question, &e.Answer, &docsJSON, &e.Mode, &typesJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat history: %w", err)
		}
		if err := json.Unmarshal([]byte(docsJSON), &e.Documents); err != nil {
			return nil, fmt.Errorf("decoding relevant documents: %w", err)
		}
		if err := json.Unmarshal([]byte(typesJSON), &e.ImageTypes); err != nil {
			return nil, fmt.Errorf("decoding image types: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc knowledge.Document) (*knowledge.Document, error) {
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

	embedding, err := encodeEmbedding(doc.Embedding)
	if err != nil {
		return nil, fmt.Errorf("encoding embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, source, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, doc.Source, embedding, doc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	if err := s.indexDocument(ctx, doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *SQLiteStore) indexDocument(ctx context.Context, doc knowledge.Document) error {
	if s.index == nil || !doc.HasEmbedding() {
		return nil
	}
	err := s.index.Upsert(ctx, []vectordb.Entry{{
		ID:        doc.ID,
		Title:     doc.Title,
		Source:    doc.Source,
		Embedding: doc.Embedding,
	}})
	if err != nil {
		return fmt.Errorf("indexing document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]knowledge.Document, error) {
	docs, err := s.queryDocuments(ctx,
		`SELECT id, title, content, source, NULL, created_at FROM documents ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) FindByTitle(ctx context.Context, title string) (*knowledge.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE title = ? LIMIT 1`, title)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding document by title: %w", err)
	}
	return &d, nil
}

func (s *SQLiteStore) ListMissingEmbeddings(ctx context.Context) ([]knowledge.Document, error) {
	docs, err := s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE embedding IS NULL ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing documents without embeddings: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", knowledge.ErrDimensionMismatch)
	}
	if err := s.checkDims(embedding); err != nil {
		return err
	}
	encoded, err := encodeEmbedding(embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE documents SET embedding = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s not found", id)
	}

	if s.index == nil {
		return nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return fmt.Errorf("reloading document %s: %w", id, err)
	}
	return s.indexDocument(ctx, doc)
}

// SyncIndex loads every embedded document into the native index. It is
// used to warm an in-process index at startup.
func (s *SQLiteStore) SyncIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	docs, err := s.ScanWithEmbeddings(ctx)
	if err != nil {
		return 0, err
	}
	entries := make([]vectordb.Entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, vectordb.Entry{ID: d.ID, Title: d.Title, Source: d.Source, Embedding: d.Embedding})
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("syncing index: %w", err)
	}
	return len(entries), nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*knowledge.Stats, error) {
	var st knowledge.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM documents`).Scan(&st.Documents, &st.WithEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	st.Sample, err = s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, rowid DESC LIMIT 3`)
	if err != nil {
		return nil, fmt.Errorf("sampling documents: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT 1 FROM chat_history ORDER BY created_at DESC LIMIT ?)`,
		recentHistoryWindow).Scan(&st.RecentHistory)
	if err != nil {
		return nil, fmt.Errorf("counting chat history: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (SELECT 1 FROM documents LIMIT 1)`).Scan(&n)
	if err != nil {
		return fmt.Errorf("%w: %v", knowledge.ErrStoreUnavailable, err)
	}
	return nil
}
