package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
)

// DefaultSubject is the NATS subject history events are published on.
const DefaultSubject = "kbchat.history"

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Event is the JSON payload published for each exchange.
type Event struct {
	ID         string                  `json:"id"`
	SessionID  string                  `json:"session_id"`
	Question   string                  `json:"question"`
	Answer     string                  `json:"answer"`
	Documents  []knowledge.DocumentRef `json:"relevant_documents"`
	Mode       string                  `json:"mode,omitempty"`
	ImageTypes []string                `json:"image_types,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// NATSSink publishes history entries for downstream consumers.
type NATSSink struct {
	pub     Publisher
	subject string
}

func NewNATSSink(pub Publisher, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{pub: pub, subject: subject}
}

// Connect dials a NATS server and returns a sink bound to it along with the
// connection, which the caller closes.
func Connect(url, subject string) (*NATSSink, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("kbchat"))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	return NewNATSSink(nc, subject), nc, nil
}

func (s *NATSSink) Append(ctx context.Context, entry knowledge.HistoryEntry) error {
	stamp(&entry)
	docs := entry.Documents
	if docs == nil {
		docs = []knowledge.DocumentRef{}
	}
	data, err := json.Marshal(Event{
		ID:         entry.ID,
		SessionID:  entry.SessionID,
		Question:   entry.Question,
		Answer:     entry.Answer,
		Documents:  docs,
		Mode:       entry.Mode,
		ImageTypes: entry.ImageTypes,
		CreatedAt:  entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding history event: %w", err)
	}

	msg := &nats.Msg{Subject: s.subject, Data: data, Header: nats.Header{}}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Header))
	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing history event: %w", err)
	}
	return nil
}

// headerCarrier adapts nats headers to the otel TextMapCarrier interface.
type headerCarrier nats.Header

func (c headerCarrier) Get(key string) string { return nats.Header(c).Get(key) }
func (c headerCarrier) Set(key, val string)   { nats.Header(c).Set(key, val) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
