package importers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/kbchat/internal/db"
)

var (
	// ErrSourceNotFound is returned when no source has the requested ID.
	ErrSourceNotFound = errors.New("import source not found")

	// ErrInvalidSource is returned for sources missing a name or a root.
	ErrInvalidSource = errors.New("name and config.root are required")
)

// Store manages persistence of import sources.
type Store struct {
	db *db.DB
}

// NewStore creates a new importers store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create adds a markdown source. The config is validated and normalised.
func (s *Store) Create(ctx context.Context, name string, cfg MarkdownConfig) (*ImportSource, error) {
	if name == "" || cfg.Root == "" {
		return nil, ErrInvalidSource
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding source config: %w", err)
	}

	src := ImportSource{
		ID:        uuid.NewString(),
		Type:      SourceMarkdown,
		Name:      name,
		Config:    string(raw),
		Status:    "configured",
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO import_sources (id, type, name, config, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		src.ID, src.Type, src.Name, src.Config, src.Status, src.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting import source: %w", err)
	}
	return &src, nil
}

const sourceColumns = `id, type, name, config, last_imported, status, created_at`

func scanSource(row interface{ Scan(...any) error }) (ImportSource, error) {
	var src ImportSource
	var lastImported sql.NullTime
	err := row.Scan(&src.ID, &src.Type, &src.Name, &src.Config, &lastImported, &src.Status, &src.CreatedAt)
	if lastImported.Valid {
		src.LastImported = &lastImported.Time
	}
	return src, err
}

// GetByID retrieves an import source by ID, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*ImportSource, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM import_sources WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting import source: %w", err)
	}
	return &src, nil
}

// List returns all configured import sources, newest first.
func (s *Store) List(ctx context.Context) ([]ImportSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM import_sources ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing import sources: %w", err)
	}
	defer rows.Close()

	var sources []ImportSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning import source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateStatus sets the status and stamps last_imported.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE import_sources SET status = ?, last_imported = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	return err
}

// Delete removes an import source.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM import_sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSourceNotFound
	}
	return nil
}
