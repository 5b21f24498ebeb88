package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/kbchat/internal/knowledge"
	"github.com/ziadkadry99/kbchat/internal/rag"
)

// maxSessionTurns bounds the turns a connection keeps for follow-up questions.
const maxSessionTurns = rag.MaxHistoryTurns

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatRequest is the incoming WebSocket message format.
type chatRequest struct {
	Type      string `json:"type"`       // "ask" or "direct"
	SessionID string `json:"session_id"` // empty for new sessions
	Content   string `json:"content"`
	ModelType string `json:"model_type,omitempty"`
}

type documentJSON struct {
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// chatResponse is the outgoing WebSocket message format.
type chatResponse struct {
	Type      string         `json:"type"` // "response" or "error"
	SessionID string         `json:"session_id"`
	Content   string         `json:"content"`
	HTML      string         `json:"html,omitempty"`
	Documents []documentJSON `json:"documents,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Degraded  bool           `json:"degraded,omitempty"`
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Turns are remembered per session for the life of the connection.
	turns := make(map[string][]knowledge.Turn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				d.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			d.sendError(conn, "", "invalid message format")
			continue
		}

		if req.Content == "" {
			d.sendError(conn, req.SessionID, "content is required")
			continue
		}

		if d.asker == nil {
			d.sendError(conn, req.SessionID, "chat service not configured")
			continue
		}

		ragReq := rag.Request{
			Question:  req.Content,
			SessionID: req.SessionID,
			History:   turns[req.SessionID],
			ModelType: req.ModelType,
		}

		var resp *rag.Response
		switch req.Type {
		case "ask":
			resp, err = d.asker.Ask(r.Context(), ragReq)
		case "direct":
			resp, err = d.asker.Direct(r.Context(), ragReq)
		default:
			d.sendError(conn, req.SessionID, "unknown message type: "+req.Type)
			continue
		}
		if err != nil {
			d.sendError(conn, req.SessionID, d.errorMessage(err, req.Type))
			continue
		}

		history := append(turns[resp.SessionID], knowledge.Turn{Question: req.Content, Answer: resp.Answer})
		if len(history) > maxSessionTurns {
			history = history[len(history)-maxSessionTurns:]
		}
		turns[resp.SessionID] = history

		d.sendResponse(conn, d.toResponse(resp))
	}
}

// errorMessage maps validation errors to client text. Anything else is
// logged and reported generically.
func (d *Dashboard) errorMessage(err error, kind string) string {
	switch {
	case errors.Is(err, rag.ErrQuestionRequired):
		return "content is required"
	case errors.Is(err, rag.ErrInvalidModelType):
		return "invalid model_type"
	default:
		d.logger.Error("websocket question failed", "type", kind, "error", err)
		return "Internal server error"
	}
}

func (d *Dashboard) toResponse(resp *rag.Response) chatResponse {
	out := chatResponse{
		Type:      "response",
		SessionID: resp.SessionID,
		Content:   resp.Answer,
		Mode:      resp.Mode,
		Degraded:  resp.Degraded,
	}
	if html, err := d.renderer.Render(resp.Answer); err == nil {
		out.HTML = html
	} else {
		d.logger.Warn("rendering answer failed", "error", err)
	}
	for _, m := range resp.Documents {
		out.Documents = append(out.Documents, documentJSON{Title: m.Title, Source: m.Source, Similarity: m.Similarity})
	}
	return out
}

func (d *Dashboard) sendResponse(conn *websocket.Conn, resp chatResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		d.logger.Warn("websocket write failed", "error", err)
	}
}

func (d *Dashboard) sendError(conn *websocket.Conn, sessionID, message string) {
	resp := chatResponse{
		Type:      "error",
		SessionID: sessionID,
		Content:   message,
	}
	if err := conn.WriteJSON(resp); err != nil {
		d.logger.Warn("websocket write failed", "error", err)
	}
}
