package server

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/recall/core"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 1 << 20
)

// wsRequest is one inbound WebSocket frame.
type wsRequest struct {
	Message string `json:"message"`
	Turn    int    `json:"turn,omitempty"`
}

// handleWS runs turns for one user over a WebSocket. Frames are handled
// strictly in order; each yields exactly one reply frame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if !s.track(conn) {
		return
	}
	defer s.untrack(conn)

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()
	log.Printf("[SERVER] WebSocket connected: user=%q", userID)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[SERVER] WebSocket read ended: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var reply any
		var req wsRequest
		switch {
		case json.Unmarshal(data, &req) != nil:
			reply = errorResponse{Error: "invalid JSON message"}
		case strings.TrimSpace(req.Message) == "":
			reply = errorResponse{Error: "message is required"}
		default:
			out, err := s.engine.Turn(ctx, &core.Input{UserID: userID, Message: req.Message, Turn: req.Turn})
			if err != nil {
				_, reply = failure(out, err)
			} else {
				reply = toChatResponse(out)
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			log.Printf("[SERVER] WebSocket write failed: %v", err)
			return
		}
	}
}

// track registers conn so shutdown can close it. It reports false once the
// server has started shutting down.
func (s *Server) track(conn *websocket.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

// closeConns sends a going-away close frame to every open WebSocket and
// closes it, unblocking handlers waiting in ReadMessage.
func (s *Server) closeConns() {
	s.connsMu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connsMu.Unlock()

	if len(conns) > 0 {
		log.Printf("[SERVER] Closing %d WebSocket connection(s)", len(conns))
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// originChecker allows requests without an Origin (non-browser clients),
// any origin when "*" is configured, and otherwise only listed origins or
// the server's own host.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		if set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
