package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/dbdiag/dbdiag/internal/dialogue"
)

var chatUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var chatMarkdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(highlighting.WithStyle("github")),
	),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

const chatHelpText = `Describe the problem you're seeing in plain text to start a diagnosis.
Reply to recommendations with "1 confirm 2 deny" (or "1确认 2否定"), or free text.
Commands: /help, /reset, /exit, /status`

// clientMessage is the incoming WebSocket message, spec §6.3.
type clientMessage struct {
	Type    string `json:"type"` // "message" | "command"
	Content string `json:"content"`
}

// serverMessage is the outgoing WebSocket message, spec §6.3.
type serverMessage struct {
	Type string `json:"type"` // "output" | "close"
	HTML string `json:"html"`
}

// chatSession tracks the one implicit session a WebSocket connection
// carries, per spec §6.3.
type chatSession struct {
	sessionID string
	started   bool
}

func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	cs := &chatSession{sessionID: uuid.NewString()}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("server: websocket read: %v", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendOutput(conn, "invalid message format")
			continue
		}

		switch msg.Type {
		case "command":
			if !s.handleChatCommand(conn, r.Context(), cs, msg.Content) {
				return
			}
		case "message":
			s.handleChatTurn(conn, r.Context(), cs, msg.Content)
		default:
			s.sendOutput(conn, fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

// handleChatTurn runs one start_conversation/continue_conversation turn and
// emits its response. s.manager is expected non-nil when chat is reachable.
func (s *Server) handleChatTurn(conn *websocket.Conn, ctx context.Context, cs *chatSession, content string) {
	if s.manager == nil {
		s.sendOutput(conn, "diagnosis is not configured on this server")
		return
	}

	var resp *dialogue.Response
	var err error
	if !cs.started {
		resp, err = s.manager.StartConversation(ctx, cs.sessionID, content)
		cs.started = true
	} else {
		resp, err = s.manager.ContinueConversation(ctx, cs.sessionID, content)
	}
	if err != nil {
		s.sendOutput(conn, fmt.Sprintf("internal error: %v", err))
		return
	}
	s.sendOutput(conn, responseText(resp))
}

// handleChatCommand dispatches a "/"-prefixed command. It returns false
// when the connection should be closed (after /exit).
func (s *Server) handleChatCommand(conn *websocket.Conn, ctx context.Context, cs *chatSession, content string) bool {
	switch content {
	case "/help":
		s.sendOutput(conn, chatHelpText)
	case "/reset":
		cs.sessionID = uuid.NewString()
		cs.started = false
		s.sendOutput(conn, "session reset; describe the new problem to begin.")
	case "/status":
		if !cs.started || s.manager == nil {
			s.sendOutput(conn, "no active session yet.")
			break
		}
		resp, err := s.manager.Status(ctx, cs.sessionID)
		if err != nil {
			s.sendOutput(conn, fmt.Sprintf("internal error: %v", err))
			break
		}
		s.sendOutput(conn, responseText(resp))
	case "/exit":
		s.sendClose(conn, "session closed.")
		return false
	default:
		s.sendOutput(conn, fmt.Sprintf("unknown command: %s (try /help)", content))
	}
	return true
}

func responseText(r *dialogue.Response) string {
	if r.Diagnosis != "" {
		return r.Diagnosis
	}
	return r.Message
}

func (s *Server) sendOutput(conn *websocket.Conn, markdown string) {
	s.sendFrame(conn, "output", markdown)
}

func (s *Server) sendClose(conn *websocket.Conn, markdown string) {
	s.sendFrame(conn, "close", markdown)
}

func (s *Server) sendFrame(conn *websocket.Conn, frameType, markdown string) {
	var buf bytes.Buffer
	if err := chatMarkdown.Convert([]byte(markdown), &buf); err != nil {
		buf.Reset()
		buf.WriteString(markdown)
	}
	msg := serverMessage{Type: frameType, HTML: buf.String()}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("server: websocket write: %v", err)
	}
}
