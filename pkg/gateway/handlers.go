package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/clawd-gateway/pkg/apperr"
	"github.com/go-go-golems/clawd-gateway/pkg/chat"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	SessionID       string  `json:"session_id"`
	Reply           string  `json:"reply"`
	TokensGenerated int     `json:"tokens_generated"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	Model           string  `json:"model"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindBadRequest, err, "invalid request body"))
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeAppError(w, apperr.New(apperr.KindBadRequest, "message must not be empty"))
		return
	}

	var sid uuid.UUID
	if req.SessionID != "" {
		parsed, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeAppError(w, apperr.Wrap(apperr.KindBadRequest, err, "invalid session_id"))
			return
		}
		sid = parsed
	}
	sid = s.sessions.GetOrCreate(sid, s.cfg.MaxHistory)

	snapshot, _ := s.sessions.Read(sid)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.DefaultMaxTokens
	}
	genReq := s.prompts.BuildRequest(req.Message, snapshot.Messages, maxTokens)

	resp, err := s.backend.Generate(r.Context(), genReq)
	if err != nil {
		log.Error().Err(err).Str("component", "gateway").
			Str("session_id", sid.String()).
			Msg("generation failed")
		writeAppError(w, err)
		return
	}

	reply := s.prompts.CleanResponse(resp.Text)
	s.sessions.Mutate(sid, func(sess *chat.Session) {
		sess.Append(chat.UserMessage(req.Message))
		sess.Append(chat.AssistantMessage(reply))
	})

	log.Info().Str("component", "gateway").
		Str("session_id", sid.String()).
		Int("tokens", resp.TokensGenerated).
		Float64("elapsed_seconds", resp.ElapsedSeconds).
		Msg("chat completed")

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:       sid.String(),
		Reply:           reply,
		TokensGenerated: resp.TokensGenerated,
		ElapsedSeconds:  resp.ElapsedSeconds,
		Model:           resp.Model,
	})
}

type newSessionRequest struct {
	HistoryWindow int `json:"history_window,omitempty"`
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	req := newSessionRequest{}
	// Body is optional; a missing or empty body means defaults.
	_ = json.NewDecoder(r.Body).Decode(&req)
	window := req.HistoryWindow
	if window <= 0 {
		window = s.cfg.MaxHistory
	}
	id := s.sessions.Create(window)
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"service":  "clawd-gateway",
		"bot_name": s.cfg.BotName,
		"llm_url":  s.cfg.LLMURL,
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleLLMHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Str("component", "gateway").Msg("write response failed")
	}
}

func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeJSON(w, kind.HTTPStatus(), map[string]any{
		"error": map[string]string{
			"code":    kind.Code(),
			"message": err.Error(),
		},
	})
}
