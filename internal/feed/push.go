package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
	"github.com/alanyoungcy/colinkwatch/internal/metrics"
)

var liveStates = []string{
	string(domain.LiveConnecting),
	string(domain.LiveConnected),
	string(domain.LiveDisconnected),
	string(domain.LiveClosed),
}

// LiveStateListener observes push channel state transitions.
type LiveStateListener func(prev, next domain.LiveState)

// PushChannel keeps one live connection open, forwards its messages to the
// sink and reconnects according to its policy until the context ends.
type PushChannel struct {
	dialer  domain.LiveDialer
	sink    domain.PushSink
	policy  ReconnectPolicy
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu        sync.Mutex
	state     domain.LiveState
	listeners []LiveStateListener
}

// NewPushChannel creates a PushChannel in the connecting state.
func NewPushChannel(dialer domain.LiveDialer, sink domain.PushSink, policy ReconnectPolicy, logger *slog.Logger, rec *metrics.Recorder) *PushChannel {
	return &PushChannel{
		dialer:  dialer,
		sink:    sink,
		policy:  policy,
		logger:  logger.With(slog.String("component", "push_channel")),
		metrics: rec,
		state:   domain.LiveConnecting,
	}
}

// OnStateChange registers a listener called on every transition.
func (p *PushChannel) OnStateChange(fn LiveStateListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// State returns the current connection state.
func (p *PushChannel) State() domain.LiveState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run drives the connection state machine:
//
//	connecting -> connected -> disconnected -> connecting ...
//
// Cancellation is checked before every retry. When ctx ends the socket is
// closed, the state becomes closed and no reconnect is attempted.
func (p *PushChannel) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			p.setState(domain.LiveClosed)
			return ctx.Err()
		}

		p.setState(domain.LiveConnecting)
		conn, err := p.dialer.Dial(ctx)
		if err == nil {
			attempt = 0
			p.setState(domain.LiveConnected)
			err = p.consume(ctx, conn)
		}

		if ctx.Err() != nil {
			p.setState(domain.LiveClosed)
			return ctx.Err()
		}

		p.setState(domain.LiveDisconnected)
		attempt++
		delay := p.policy.Next(attempt)
		p.logger.WarnContext(ctx, "live channel disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		p.metrics.Reconnect()

		if !sleepCtx(ctx, delay) {
			p.setState(domain.LiveClosed)
			return ctx.Err()
		}
	}
}

// consume reads until the connection fails. Frames that cannot be decoded
// are dropped without closing the connection.
func (p *PushChannel) consume(ctx context.Context, conn domain.LiveConn) error {
	session := uuid.NewString()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	p.logger.InfoContext(ctx, "live channel connected", slog.String("session", session))

	for {
		msg, err := conn.Next()
		if err != nil {
			if isDecodeError(err) {
				p.metrics.PushMalformed()
				p.logger.WarnContext(ctx, "dropped live message",
					slog.String("session", session),
					slog.String("error", err.Error()),
				)
				continue
			}
			return err
		}
		p.sink.ApplyPush(msg)
		p.metrics.PushMessage(string(msg.Kind))
	}
}

func (p *PushChannel) setState(next domain.LiveState) {
	p.mu.Lock()
	prev := p.state
	if prev == next {
		p.mu.Unlock()
		return
	}
	p.state = next
	listeners := p.listeners
	p.mu.Unlock()

	p.sink.SetLiveState(next)
	p.metrics.LiveState(string(next), liveStates)
	for _, fn := range listeners {
		fn(prev, next)
	}
}

func isDecodeError(err error) bool {
	return errors.Is(err, domain.ErrMalformed) || errors.Is(err, domain.ErrUnknownMessage)
}
