package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/clawd-gateway/pkg/apperr"
	"github.com/go-go-golems/clawd-gateway/pkg/bridge"
	"github.com/go-go-golems/clawd-gateway/pkg/chat"
	"github.com/go-go-golems/clawd-gateway/pkg/events"
)

type wsInbound struct {
	Message   string `json:"message"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// wsDownstream adapts a websocket connection to the bridge's Downstream.
// All sends happen on the handler goroutine, so writes are serialized.
type wsDownstream struct {
	conn *websocket.Conn
}

func (d *wsDownstream) Send(ev events.StreamEvent) error {
	return d.conn.WriteMessage(websocket.TextMessage, ev.Marshal())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "gateway").Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	clientKey := clientIP(r)
	sid := s.sessions.Create(s.cfg.MaxHistory)
	// The socket owns its session: closing the connection discards it
	// immediately rather than waiting for idle eviction.
	defer s.sessions.Remove(sid)

	log.Info().Str("component", "gateway").
		Str("session_id", sid.String()).
		Str("client", clientKey).
		Msg("websocket connected")

	down := &wsDownstream{conn: conn}
	if err := down.Send(events.Connected(sid.String(), s.prompts.BotName())); err != nil {
		return
	}

	ctx := s.requestContext()
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("component", "gateway").
					Str("session_id", sid.String()).
					Msg("websocket read ended")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		inbound := parseWSInbound(payload)
		inbound.Message = strings.TrimSpace(inbound.Message)
		if inbound.Message == "" {
			_ = down.Send(events.Error(apperr.KindBadRequest.Code(), "message must not be empty"))
			continue
		}

		// Long-lived sockets bypass per-request middleware, so every message
		// is checked against the same bucket as HTTP traffic.
		if !s.admission.Check(clientKey) {
			_ = down.Send(events.Error(apperr.KindRateLimited.Code(), "too many requests"))
			continue
		}

		maxTokens := inbound.MaxTokens
		if maxTokens <= 0 {
			maxTokens = s.cfg.DefaultMaxTokens
		}
		snapshot, _ := s.sessions.Read(sid)

		attempt := bridge.Attempt{
			SessionID:   sid,
			Backend:     s.backend,
			StreamReq:   s.prompts.BuildStreamingRequest(inbound.Message, snapshot.Messages, maxTokens),
			FallbackReq: s.prompts.BuildRequest(inbound.Message, snapshot.Messages, maxTokens),
			Downstream:  down,
			Finalize:    s.prompts.CleanResponse,
			Commit: func(reply string) bool {
				return s.sessions.Mutate(sid, func(sess *chat.Session) {
					sess.Append(chat.UserMessage(inbound.Message))
					sess.Append(chat.AssistantMessage(reply))
				})
			},
		}

		if err := s.bridge.Run(ctx, attempt); err != nil {
			if errors.Is(err, bridge.ErrDownstreamClosed) {
				return
			}
			// Terminal error event was already delivered; keep the socket
			// open for the next message.
			log.Error().Err(err).Str("component", "gateway").
				Str("session_id", sid.String()).
				Msg("streaming attempt failed")
		}
	}
}

// parseWSInbound accepts either the JSON envelope or bare text, which older
// clients send as-is.
func parseWSInbound(payload []byte) wsInbound {
	if json.Valid(payload) {
		var inbound wsInbound
		_ = json.Unmarshal(payload, &inbound)
		return inbound
	}
	return wsInbound{Message: string(payload)}
}
