package answer

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/llm"
)

// MaxHistoryTurns is the number of most recent turns rendered into a prompt.
const MaxHistoryTurns = 3

// Fixed user-facing strings returned when the model call fails.
const (
	GroundedApology = "申し訳ございませんが、現在AIサービスに問題が発生しています。関連文書の情報を参考にしてください。"
	DirectApology   = "申し訳ございませんが、現在AIサービスに問題が発生しています。しばらく経ってから再度お試しください。"
)

const groundedPreamble = "あなたは社内ナレッジベースの専門アシスタントです。以下の関連文書と会話履歴を参考にして、ユーザーの質問に正確で親切な回答をしてください。"

const groundedGuidelines = `## 回答指針:
- 関連文書の情報のみを使用して回答してください
- 会話履歴がある場合は、文脈を考慮して回答してください
- 具体的で実用的な回答を心がけてください
- 情報が不足している場合は、その旨を明記してください
- 丁寧で分かりやすい日本語で回答してください`

const directPreamble = "あなたは親切で知識豊富なAIアシスタントです。ユーザーの質問に対して、適切で役立つ回答をしてください。"

const directGuidelines = `## 回答指針:
- 質問に対して正確で役立つ情報を提供してください
- 分からないことは正直に「分からない」と答えてください
- 丁寧で分かりやすい日本語で回答してください
- 会話履歴がある場合は、文脈を考慮して回答してください`

// RecentTurns returns at most n of the latest turns, oldest first.
func RecentTurns(turns []knowledge.Turn, n int) []knowledge.Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

// FormatContext renders matched documents as "[title](source)\ncontent"
// entries separated by blank lines.
func FormatContext(docs []knowledge.Match) string {
	entries := make([]string, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, fmt.Sprintf("[%s](%s)\n%s", d.Title, d.Source, d.Content))
	}
	return strings.Join(entries, "\n\n")
}

// FormatHistory numbers each turn as "N. Q: ...\n   A: ...".
func FormatHistory(turns []knowledge.Turn) string {
	entries := make([]string, 0, len(turns))
	for i, t := range turns {
		entries = append(entries, fmt.Sprintf("%d. Q: %s\n   A: %s", i+1, t.Question, t.Answer))
	}
	return strings.Join(entries, "\n\n")
}

// GroundedPrompt builds the single-text prompt for a document-grounded answer.
func GroundedPrompt(question string, docs []knowledge.Match, history []knowledge.Turn) string {
	var b strings.Builder
	b.WriteString(groundedPreamble)
	b.WriteString("\n\n## 関連文書:\n")
	b.WriteString(FormatContext(docs))
	b.WriteString("\n\n")
	writeHistory(&b, history)
	b.WriteString("## 現在の質問:\n")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(groundedGuidelines)
	b.WriteString("\n\n回答:\n")
	return b.String()
}

// DirectPrompt builds the general-knowledge prompt used without retrieval.
func DirectPrompt(question string, history []knowledge.Turn) string {
	var b strings.Builder
	b.WriteString(directPreamble)
	b.WriteString("\n\n")
	writeHistory(&b, history)
	b.WriteString("## 現在の質問:\n")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(directGuidelines)
	b.WriteString("\n\n回答:\n")
	return b.String()
}

func writeHistory(b *strings.Builder, history []knowledge.Turn) {
	recent := RecentTurns(history, MaxHistoryTurns)
	if len(recent) == 0 {
		return
	}
	b.WriteString("## 会話履歴:\n")
	b.WriteString(FormatHistory(recent))
	b.WriteString("\n\n")
}

// LocalMessages builds the role-tagged conversation for chat-completion
// models: system preamble, flattened history, then the question.
func LocalMessages(system, question string, history []knowledge.Turn) []llm.Message {
	recent := RecentTurns(history, MaxHistoryTurns)
	msgs := make([]llm.Message, 0, 2+2*len(recent))
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, t := range recent {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.Question},
			llm.Message{Role: llm.RoleAssistant, Content: t.Answer},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
}

func localGroundedSystem(docs []knowledge.Match) string {
	return groundedPreamble + "\n\n## 関連文書:\n" + FormatContext(docs) + "\n\n" + groundedGuidelines
}

func localDirectSystem() string {
	return directPreamble + "\n\n" + directGuidelines
}
