package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/deep-market-agent/agent/agents/orchestrator"
	logx "github.com/tanpawarit/deep-market-agent/pkg/logger"
)

// TurnRunner is the conversation surface the HTTP layer drives.
type TurnRunner interface {
	RunTurn(ctx context.Context, sc orchestrator.SessionContext, prompt string) (<-chan orchestrator.Event, error)
	HandleMessage(ctx context.Context, sc orchestrator.SessionContext, prompt string) (orchestrator.Reply, error)
}

type messageRequest struct {
	Query    string `json:"query"`
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	ChatName string `json:"chat_name"`
}

type messageResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ChatID      string `json:"chat_id"`
	UserID      string `json:"user_id"`
	DocumentID  string `json:"document_id,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

type handler struct {
	runner        TurnRunner
	defaultUserID string
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads the request body and fills in the defaults: a fresh chat id and
// the configured default user.
func (h *handler) decode(w http.ResponseWriter, r *http.Request) (messageRequest, bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return messageRequest{}, false
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return messageRequest{}, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		badRequest(w, "query is required")
		return messageRequest{}, false
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		req.ChatID = uuid.NewString()
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = h.defaultUserID
	}
	return req, true
}

func (req messageRequest) session() orchestrator.SessionContext {
	return orchestrator.SessionContext{ActorID: req.UserID, SessionID: req.ChatID}
}

func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		internalError(w, errStreamingUnsupported)
		return
	}
	logger := logx.Session(req.UserID, req.ChatID)

	events, err := h.runner.RunTurn(r.Context(), req.session(), req.Query)
	if err != nil {
		writeFailure(w, orchestrator.AsFailure(err))
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		internalError(w, err)
		return
	}
	logger.Info().Str("chat_name", req.ChatName).Msg("stream started")

	send := func(msgType string, fields map[string]any) {
		if err := sse.send(msgType, fields); err != nil {
			logger.Debug().Err(err).Str("event", msgType).Msg("sse write failed")
		}
	}

	send(sseMetadata, map[string]any{"chat_id": req.ChatID, "user_id": req.UserID})

	failed := false
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventTextDelta:
			send(sseChunk, map[string]any{"content": ev.Text})
		case orchestrator.EventFinalReference:
			send(sseDocument, map[string]any{
				"document_id": ev.Reference.DocumentID,
				"url":         ev.Reference.ArtifactURL,
			})
		case orchestrator.EventError:
			failed = true
			send(sseError, map[string]any{"code": ev.Failure.Code, "message": ev.Failure.Message})
		}
	}
	if failed || r.Context().Err() != nil {
		return
	}
	send(sseDone, map[string]any{"chat_id": req.ChatID})
}

func (h *handler) message(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	reply, err := h.runner.HandleMessage(r.Context(), req.session(), req.Query)
	if err != nil {
		writeFailure(w, orchestrator.AsFailure(err))
		return
	}

	resp := messageResponse{
		Success: true,
		Message: reply.Message,
		ChatID:  req.ChatID,
		UserID:  req.UserID,
	}
	if reply.Reference != nil {
		resp.DocumentID = reply.Reference.DocumentID
		resp.DocumentURL = reply.Reference.ArtifactURL
	}
	writeJSON(w, http.StatusOK, resp)
}

/* --------------------------------- helpers -------------------------------- */

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write json response")
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: orchestrator.CodeInvalidRequest, Error: msg})
}

func internalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("internal error")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Code: orchestrator.CodeInternal, Error: "internal server error"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: orchestrator.CodeInvalidRequest, Error: "method not allowed"})
}

func writeFailure(w http.ResponseWriter, f *orchestrator.Failure) {
	writeJSON(w, statusFor(f), errorResponse{Code: f.Code, Error: f.Message})
}

func statusFor(f *orchestrator.Failure) int {
	switch f.Code {
	case orchestrator.CodeInvalidRequest:
		return http.StatusBadRequest
	case orchestrator.CodeSessionBusy:
		return http.StatusConflict
	case orchestrator.CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case orchestrator.CodeRecursionExceeded:
		return http.StatusUnprocessableEntity
	case orchestrator.CodeModelError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
