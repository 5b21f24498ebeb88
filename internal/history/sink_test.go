package history

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
)

type recordingAppender struct {
	entries []knowledge.HistoryEntry
	err     error
}

func (r *recordingAppender) AppendHistory(_ context.Context, e knowledge.HistoryEntry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

type recordingPublisher struct {
	msgs []*nats.Msg
	err  error
}

func (r *recordingPublisher) PublishMsg(m *nats.Msg) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func TestStoreSinkStampsEntry(t *testing.T) {
	store := &recordingAppender{}
	sink := NewStoreSink(store)

	err := sink.Append(context.Background(), knowledge.HistoryEntry{SessionID: "s1", Question: "q", Answer: "a"})
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
	assert.NotEmpty(t, store.entries[0].ID)
	assert.False(t, store.entries[0].CreatedAt.IsZero())
}

func TestStoreSinkWrapsError(t *testing.T) {
	boom := errors.New("table missing")
	sink := NewStoreSink(&recordingAppender{err: boom})

	err := sink.Append(context.Background(), knowledge.HistoryEntry{Question: "q"})
	assert.ErrorIs(t, err, boom)
}

func TestNATSSinkPublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewNATSSink(pub, "")

	err := sink.Append(context.Background(), knowledge.HistoryEntry{
		SessionID: "s1",
		Question:  "有給は？",
		Answer:    "3日前まで",
		Documents: []knowledge.DocumentRef{{ID: "d1", Title: "有給休暇の取得方法", Source: "hr", Similarity: 0.8}},
	})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, DefaultSubject, pub.msgs[0].Subject)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.msgs[0].Data, &ev))
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "有給は？", ev.Question)
	require.Len(t, ev.Documents, 1)
	assert.Equal(t, "d1", ev.Documents[0].ID)
	assert.NotEmpty(t, ev.ID)
}

func TestNATSSinkEmptyDocumentsEncodeAsArray(t *testing.T) {
	pub := &recordingPublisher{}
	require.NoError(t, NewNATSSink(pub, "custom").Append(context.Background(), knowledge.HistoryEntry{Question: "q"}))

	assert.Equal(t, "custom", pub.msgs[0].Subject)
	assert.Contains(t, string(pub.msgs[0].Data), `"relevant_documents":[]`)
}

func TestMultiAttemptsEverySink(t *testing.T) {
	failing := &recordingAppender{err: errors.New("down")}
	ok := &recordingAppender{}
	pub := &recordingPublisher{}

	m := Multi{NewStoreSink(failing), NewStoreSink(ok), NewNATSSink(pub, "")}
	err := m.Append(context.Background(), knowledge.HistoryEntry{Question: "q"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	require.Len(t, ok.entries, 1)
	require.Len(t, pub.msgs, 1)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.msgs[0].Data, &ev))
	assert.Equal(t, ok.entries[0].ID, ev.ID, "all sinks see the same entry id")
}
