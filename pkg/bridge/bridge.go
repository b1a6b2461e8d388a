// Package bridge turns the backend's push-style token callback into an
// ordered event stream for one downstream connection, with cancellation on
// disconnect and a blocking-generation fallback when streaming fails.
package bridge

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/clawd-gateway/pkg/apperr"
	"github.com/go-go-golems/clawd-gateway/pkg/events"
	"github.com/go-go-golems/clawd-gateway/pkg/llm"
)

// ErrDownstreamClosed reports that the receiving connection went away mid
// attempt. The caller should tear the connection down; nothing was committed.
var ErrDownstreamClosed = errors.New("downstream connection closed")

// Downstream receives the attempt's events in order. Send is only called from
// the goroutine running Run, so implementations need no locking of their own.
type Downstream interface {
	Send(ev events.StreamEvent) error
}

// Attempt describes one generation run.
type Attempt struct {
	SessionID uuid.UUID
	Backend   llm.Backend

	// StreamReq drives the streaming path; FallbackReq is its blocking twin,
	// used once if streaming fails.
	StreamReq   llm.Request
	FallbackReq llm.Request

	Downstream Downstream

	// Finalize cleans the raw accumulated text before commit and delivery.
	Finalize func(raw string) string

	// Commit atomically records the exchange in session state. Returning
	// false means the session vanished mid-attempt; the reply is still
	// delivered.
	Commit func(reply string) bool
}

// Bridge owns the in-process pub/sub that carries token events from driver
// goroutines to drain loops. One Bridge serves the whole process.
type Bridge struct {
	pubsub *gochannel.GoChannel
}

func New() *Bridge {
	logger := newWatermillLogger(log.Logger)
	return &Bridge{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger),
	}
}

func (b *Bridge) Close() error {
	return b.pubsub.Close()
}

// Run executes one attempt to completion. Tokens are forwarded downstream as
// they arrive; on success the finalized reply is committed and delivered as
// the terminal event. Callback order is preserved end to end: a single driver
// goroutine publishes to a topic unique to this attempt, and the single
// subscriber here drains it in order.
func (b *Bridge) Run(ctx context.Context, a Attempt) error {
	topic := "gen." + a.SessionID.String() + "." + watermill.NewUUID()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before the driver starts; the gochannel transport drops
	// messages published to topics without subscribers.
	msgs, err := b.pubsub.Subscribe(runCtx, topic)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "subscribe attempt topic")
	}

	driverDone := make(chan error, 1)
	go func() {
		streamErr := a.Backend.GenerateStreaming(runCtx, a.StreamReq, func(token string) {
			b.publish(topic, events.Token(a.SessionID.String(), token))
		})
		if streamErr != nil {
			b.publish(topic, events.Error(apperr.KindOf(streamErr).Code(), streamErr.Error()))
		} else {
			b.publish(topic, events.Done())
		}
		driverDone <- streamErr
	}()

	var buf strings.Builder
	forwarded := 0
	downstreamGone := false

drain:
	for msg := range msgs {
		ev, perr := events.Parse(msg.Payload)
		msg.Ack()
		if perr != nil {
			log.Warn().Err(perr).Str("component", "bridge").Msg("dropping malformed attempt event")
			continue
		}
		switch ev.Type {
		case events.TypeToken:
			buf.WriteString(ev.Data)
			if downstreamGone {
				continue
			}
			if sendErr := a.Downstream.Send(ev); sendErr != nil {
				log.Debug().Err(sendErr).Str("component", "bridge").
					Str("session_id", a.SessionID.String()).
					Msg("downstream send failed, cancelling attempt")
				downstreamGone = true
				cancel()
			} else {
				forwarded++
			}
		case events.TypeDone, events.TypeError:
			break drain
		}
	}

	streamErr := <-driverDone

	if downstreamGone {
		return ErrDownstreamClosed
	}

	if streamErr == nil {
		return b.deliver(a, a.Finalize(buf.String()))
	}

	// Streaming failed: the partial buffer is discarded and one blocking
	// generation replaces the whole attempt. Anything already forwarded stays
	// on the client's screen.
	log.Warn().Err(streamErr).Str("component", "bridge").
		Str("session_id", a.SessionID.String()).
		Int("tokens_forwarded", forwarded).
		Msg("streaming failed, falling back to blocking generation")
	resp, genErr := a.Backend.Generate(runCtx, a.FallbackReq)
	if genErr != nil {
		kind := apperr.KindOf(genErr)
		_ = a.Downstream.Send(events.Error(kind.Code(), "generation failed"))
		return errors.Wrap(genErr, "fallback generation failed")
	}
	return b.deliver(a, a.Finalize(resp.Text))
}

func (b *Bridge) deliver(a Attempt, reply string) error {
	if a.Commit != nil && !a.Commit(reply) {
		log.Debug().Str("component", "bridge").
			Str("session_id", a.SessionID.String()).
			Msg("session gone before commit, delivering reply without history update")
	}
	if err := a.Downstream.Send(events.Reply(a.SessionID.String(), reply)); err != nil {
		return ErrDownstreamClosed
	}
	return nil
}

func (b *Bridge) publish(topic string, ev events.StreamEvent) {
	msg := message.NewMessage(watermill.NewUUID(), ev.Marshal())
	if err := b.pubsub.Publish(topic, msg); err != nil {
		log.Warn().Err(err).Str("component", "bridge").Str("topic", topic).Msg("publish attempt event failed")
	}
}
