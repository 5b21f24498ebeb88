package knowledge

import "time"

// DefaultSource labels documents submitted without a source.
const DefaultSource = "manual"

// UnknownSource labels rows that reach the pipeline without a source.
const UnknownSource = "unknown"

// ModeDirect marks history entries produced without retrieval.
const ModeDirect = "direct"

// Document is a knowledge-base entry. Embedding is nil until computed.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// HasEmbedding reports whether the document carries a vector.
func (d Document) HasEmbedding() bool {
	return len(d.Embedding) > 0
}

// Match is a document returned by a search together with its similarity score.
type Match struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// Ref returns the reference persisted in chat history for this match.
func (m Match) Ref() DocumentRef {
	return DocumentRef{
		ID:         m.ID,
		Title:      m.Title,
		Source:     m.Source,
		Similarity: m.Similarity,
	}
}

// MatchFromDocument projects a document into a match with the given score.
func MatchFromDocument(d Document, similarity float64) Match {
	source := d.Source
	if source == "" {
		source = UnknownSource
	}
	title := d.Title
	if title == "" {
		title = "Untitled"
	}
	return Match{
		ID:         d.ID,
		Title:      title,
		Content:    d.Content,
		Source:     source,
		Similarity: similarity,
	}
}

// DocumentRef is the snapshot of a consulted document stored with a history entry.
type DocumentRef struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// HistoryEntry is one persisted question/answer exchange.
// Either Documents or Mode describes what was consulted.
type HistoryEntry struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	Documents  []DocumentRef `json:"relevant_documents"`
	Mode       string        `json:"mode,omitempty"`
	ImageTypes []string      `json:"image_types,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Turn is a prior question/answer pair supplied by the client.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Image is an attachment sent alongside a question.
type Image struct {
	MIMEType string
	Data     []byte
}

// ImageTypes returns the mime types of the given images.
func ImageTypes(images []Image) []string {
	if len(images) == 0 {
		return nil
	}
	types := make([]string, len(images))
	for i, img := range images {
		types[i] = img.MIMEType
	}
	return types
}
