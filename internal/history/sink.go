// Package history records completed chat exchanges. Writes are best-effort:
// callers log failures and carry on.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
)

// Sink appends one exchange to a history destination.
type Sink interface {
	Append(ctx context.Context, entry knowledge.HistoryEntry) error
}

// Appender is the part of a document store that persists history rows.
type Appender interface {
	AppendHistory(ctx context.Context, entry knowledge.HistoryEntry) error
}

// StoreSink writes history into the document store.
type StoreSink struct {
	store Appender
}

func NewStoreSink(store Appender) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Append(ctx context.Context, entry knowledge.HistoryEntry) error {
	stamp(&entry)
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Multi fans an entry out to several sinks. Every sink is attempted; the
// returned error joins the individual failures.
type Multi []Sink

func (m Multi) Append(ctx context.Context, entry knowledge.HistoryEntry) error {
	stamp(&entry)
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stamp fills the ID and timestamp so every destination sees the same values.
func stamp(e *knowledge.HistoryEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}
