package cp

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/cpnet/internal/observability"
	"github.com/danmuck/cpnet/internal/phy"
	"github.com/danmuck/cpnet/internal/protocol"
	"github.com/rs/zerolog"
)

// inbound is one decoded CP frame and its envelope.
type inbound struct {
	env phy.Envelope
	msg protocol.Message
}

// endpoint is the message-exchange capability shared by every role.
type endpoint struct {
	tr      phy.Transport
	role    Role
	timeout time.Duration
	logger  zerolog.Logger
}

func newEndpoint(tr phy.Transport, role Role, timeout time.Duration, logger zerolog.Logger) endpoint {
	return endpoint{
		tr:      tr,
		role:    role,
		timeout: timeout,
		logger:  logger.With().Str("role", string(role)).Logger(),
	}
}

// send frames msg and hands it to the transport under the CP protocol id.
func (e *endpoint) send(ctx context.Context, msg protocol.Message, to phy.Addr) error {
	frame, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	if err := e.tr.Send(ctx, frame, to.WithProto(phy.ProtoCP)); err != nil {
		return err
	}
	e.logger.Trace().Str("to", to.HostPort()).Str("kind", msg.Kind().String()).Msg("cp frame sent")
	return nil
}

// receive blocks for one datagram and decodes it as CP.
// Timeouts, foreign frames and decode failures are recorded separately.
func (e *endpoint) receive(ctx context.Context) (inbound, error) {
	env, err := e.tr.Receive(ctx, e.timeout)
	if err != nil {
		switch {
		case errors.Is(err, phy.ErrTimeout):
			e.record(observability.FrameTimeout)
		case ctx.Err() == nil:
			e.record(observability.FrameTransportError)
		}
		return inbound{}, err
	}
	if env.From.Proto != phy.ProtoCP {
		e.record(observability.FrameForeign)
		return inbound{env: env}, ErrForeignFrame
	}
	msg, err := protocol.Unmarshal(env.Payload)
	if err != nil {
		if errors.Is(err, protocol.ErrIntegrity) {
			e.record(observability.FrameIntegrityError)
		} else {
			e.record(observability.FrameDecodeError)
		}
		return inbound{env: env}, err
	}
	return inbound{env: env, msg: msg}, nil
}

func (e *endpoint) record(outcome string) {
	observability.RecordFrame(string(e.role), outcome)
}

// recoverable reports whether err only spoils the current frame.
func recoverable(err error) bool {
	return errors.Is(err, phy.ErrTimeout) ||
		errors.Is(err, ErrForeignFrame) ||
		errors.Is(err, protocol.ErrFrame) ||
		errors.Is(err, protocol.ErrIntegrity)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
