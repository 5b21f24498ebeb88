package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/llm"
)

type fakeProvider struct {
	name   string
	vision bool
	reply  string
	err    error
	calls  []llm.CompletionRequest
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) SupportsImages() bool { return f.vision }

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply}, nil
}

func turns(n int) []knowledge.Turn {
	out := make([]knowledge.Turn, n)
	for i := range out {
		out[i] = knowledge.Turn{Question: fmt.Sprintf("q%d", i+1), Answer: fmt.Sprintf("a%d", i+1)}
	}
	return out
}

var sampleDocs = []knowledge.Match{
	{Title: "有給休暇の取得方法", Source: "hr", Content: "申請は3日前まで", Similarity: 0.8},
	{Title: "勤務時間について", Source: "manual", Content: "9時から18時", Similarity: 0.4},
}

func TestFormatContext(t *testing.T) {
	got := FormatContext(sampleDocs)
	assert.Equal(t, "[有給休暇の取得方法](hr)\n申請は3日前まで\n\n[勤務時間について](manual)\n9時から18時", got)
}

func TestGroundedPromptKeepsLastThreeTurns(t *testing.T) {
	prompt := GroundedPrompt("今日は？", sampleDocs, turns(10))

	assert.Contains(t, prompt, "1. Q: q8\n   A: a8")
	assert.Contains(t, prompt, "2. Q: q9\n   A: a9")
	assert.Contains(t, prompt, "3. Q: q10\n   A: a10")
	assert.NotContains(t, prompt, "q7")
	assert.Contains(t, prompt, "## 関連文書:\n[有給休暇の取得方法](hr)")
	assert.Contains(t, prompt, "## 現在の質問:\n今日は？")
	assert.Contains(t, prompt, "関連文書の情報のみ")
}

func TestPromptsOmitEmptyHistory(t *testing.T) {
	assert.NotContains(t, GroundedPrompt("q", sampleDocs, nil), "会話履歴:")
	direct := DirectPrompt("q", nil)
	assert.NotContains(t, direct, "会話履歴:")
	assert.NotContains(t, direct, "関連文書:")
}

func TestGroundedReturnsModelText(t *testing.T) {
	p := &fakeProvider{name: "google", reply: "3日前までに申請してください"}
	s := NewSynthesizer(p, nil, Options{}, nil)

	res := s.Grounded(context.Background(), GroundedRequest{Question: "有給は？", Documents: sampleDocs})

	assert.False(t, res.Degraded)
	assert.Equal(t, "3日前までに申請してください", res.Text)
	require.Len(t, p.calls, 1)
	require.Len(t, p.calls[0].Messages, 1)
	assert.Equal(t, llm.RoleUser, p.calls[0].Messages[0].Role)
}

func TestGroundedFailureReturnsApology(t *testing.T) {
	p := &fakeProvider{name: "google", err: errors.New("quota exceeded")}
	s := NewSynthesizer(p, nil, Options{}, nil)

	res := s.Grounded(context.Background(), GroundedRequest{Question: "q", Documents: sampleDocs})
	assert.True(t, res.Degraded)
	assert.Equal(t, GroundedApology, res.Text)

	direct := s.Direct(context.Background(), DirectRequest{Question: "q"})
	assert.True(t, direct.Degraded)
	assert.Equal(t, DirectApology, direct.Text)
}

func TestImagesAttachedWhenSupported(t *testing.T) {
	p := &fakeProvider{name: "google", vision: true, reply: "ok"}
	s := NewSynthesizer(p, nil, Options{}, nil)

	img := knowledge.Image{MIMEType: "image/png", Data: []byte{0x89, 0x50}}
	s.Direct(context.Background(), DirectRequest{Question: "これは何？", Images: []knowledge.Image{img}})

	require.Len(t, p.calls, 1)
	msg := p.calls[0].Messages[0]
	require.Len(t, msg.Images, 1)
	assert.Equal(t, "image/png", msg.Images[0].MIMEType)
	assert.Equal(t, []byte{0x89, 0x50}, msg.Images[0].Data)
}

func TestLocalPathIgnoresImages(t *testing.T) {
	primary := &fakeProvider{name: "google", vision: true}
	local := &fakeProvider{name: "ollama", reply: "local"}
	s := NewSynthesizer(primary, local, Options{}, nil)

	res := s.Grounded(context.Background(), GroundedRequest{
		Question:  "有給は？",
		Documents: sampleDocs,
		History:   turns(5),
		Images:    []knowledge.Image{{MIMEType: "image/jpeg", Data: []byte{1}}},
		ModelType: ModelLocal,
	})

	assert.Equal(t, "local", res.Text)
	assert.Empty(t, primary.calls)
	require.Len(t, local.calls, 1)

	msgs := local.calls[0].Messages
	// system + 3 turns flattened + question
	require.Len(t, msgs, 8)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.True(t, strings.Contains(msgs[0].Content, "[勤務時間について](manual)\n9時から18時"))
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "q3"}, msgs[1])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "a3"}, msgs[2])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "有給は？"}, msgs[7])
	for _, m := range msgs {
		assert.Empty(t, m.Images)
	}
}

func TestLocalDirectHasNoContext(t *testing.T) {
	local := &fakeProvider{name: "ollama", reply: "hi"}
	s := NewSynthesizer(&fakeProvider{name: "google"}, local, Options{}, nil)

	res := s.Direct(context.Background(), DirectRequest{Question: "こんにちは", ModelType: ModelLocal})
	assert.Equal(t, "hi", res.Text)
	require.Len(t, local.calls[0].Messages, 2)
	assert.NotContains(t, local.calls[0].Messages[0].Content, "関連文書")
}

func TestLocalNotConfiguredDegrades(t *testing.T) {
	s := NewSynthesizer(&fakeProvider{name: "google"}, nil, Options{}, nil)
	res := s.Direct(context.Background(), DirectRequest{Question: "q", ModelType: ModelLocal})
	assert.True(t, res.Degraded)
	assert.Equal(t, DirectApology, res.Text)
}

func TestRecentTurns(t *testing.T) {
	assert.Len(t, RecentTurns(turns(2), 3), 2)
	got := RecentTurns(turns(6), 3)
	require.Len(t, got, 3)
	assert.Equal(t, "q4", got[0].Question)
	assert.Nil(t, RecentTurns(turns(2), 0))
}
