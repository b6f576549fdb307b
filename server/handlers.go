package server

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/engine"
	"github.com/becomeliminal/recall/memory"
)

// chatRequest is the body of POST /chat.
type chatRequest struct {
	Message string `json:"message"`
	Turn    int    `json:"turn,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// chatResponse is returned by POST /chat and over /ws.
type chatResponse struct {
	Response   string `json:"response"`
	MemoryUsed string `json:"memory_used"`
	Timestamp  string `json:"timestamp"`
	Turn       int    `json:"turn"`
	UserID     string `json:"user_id"`
}

// chatFailure carries the error alongside the apology shown to the user.
type chatFailure struct {
	Error      string `json:"error"`
	Response   string `json:"response"`
	MemoryUsed string `json:"memory_used"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	if !s.engine.Ready() {
		respondJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Timestamp: now})
		return
	}
	respondJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: now})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	out, err := s.engine.Turn(r.Context(), &core.Input{
		UserID:  req.UserID,
		Message: req.Message,
		Turn:    req.Turn,
	})
	if err != nil {
		status, body := failure(out, err)
		respondJSON(w, status, body)
		return
	}

	respondJSON(w, http.StatusOK, toChatResponse(out))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = core.DefaultUserID
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"history": s.engine.History(userID),
	})
}

func (s *Server) handleMemoryCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Count(r.Context())
	if err != nil {
		log.Printf("[SERVER] Count failed: %v", err)
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": n})
}

func toChatResponse(out *engine.Output) chatResponse {
	return chatResponse{
		Response:   out.Answer,
		MemoryUsed: out.MemoryUsed(),
		Timestamp:  out.Timestamp.Format(time.RFC3339),
		Turn:       out.Turn,
		UserID:     out.UserID,
	}
}

// failure maps a failed turn onto a status and body. Invalid input gets a
// bare error; everything else also carries the apology.
func failure(out *engine.Output, err error) (int, any) {
	status := statusFor(err)
	if status == http.StatusBadRequest || out == nil {
		return status, errorResponse{Error: err.Error()}
	}
	return status, chatFailure{
		Error:      err.Error(),
		Response:   out.Answer,
		MemoryUsed: memory.DisplayContext(out.MemoryContext),
	}
}

func statusFor(err error) int {
	if errors.Is(err, engine.ErrNotReady) {
		return http.StatusInternalServerError
	}
	return core.HTTPStatus(err)
}
