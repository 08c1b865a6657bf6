// Package stream keeps exactly one live kline subscription open and feeds decoded
// updates to the chart pipeline.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ctreader/internal/domain"
	"ctreader/internal/marketdata"
	"ctreader/internal/ports"
)

const (
	// DefaultReconnectDelay is the fixed wait between a transport close and the next dial.
	DefaultReconnectDelay = 5 * time.Second

	teardownTimeout = 2 * time.Second
)

// State is the lifecycle state of the live subscription.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Sink receives every decoded live candle together with the key it arrived on.
type Sink interface {
	ApplyLive(key domain.StreamKey, candle domain.Candle)
}

// Config holds the collaborators of a Reconciler.
type Config struct {
	Streamer ports.KlineStreamer
	Sink     Sink
	Logger   ports.Logger
	// CurrentKey returns the key that should be live right now. It is read when a
	// reconnect fires. Nil means reconnect to the key that was open.
	CurrentKey     func() domain.StreamKey
	ReconnectDelay time.Duration
}

// Reconciler owns the single live subscription.
//
// openMu serializes Open, Close and reconnects so that the previous transport is always
// torn down before the next dial. mu guards the subscription fields and is never held
// while calling the sink or the streamer.
type Reconciler struct {
	streamer       ports.KlineStreamer
	sink           Sink
	logger         ports.Logger
	currentKey     func() domain.StreamKey
	reconnectDelay time.Duration

	openMu sync.Mutex

	mu           sync.Mutex
	ctx          context.Context
	state        State
	key          domain.StreamKey
	subID        string
	stopCh       chan<- struct{}
	doneCh       <-chan struct{}
	reconnect    *time.Timer
	reconnectGen uint64
}

// New creates a Reconciler in the Closed state.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Streamer == nil {
		return nil, fmt.Errorf("streamer is required for Reconciler")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is required for Reconciler")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Reconciler")
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Reconciler{
		streamer:       cfg.Streamer,
		sink:           cfg.Sink,
		logger:         cfg.Logger,
		currentKey:     cfg.CurrentKey,
		reconnectDelay: delay,
		state:          StateClosed,
	}, nil
}

// State returns the current lifecycle state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Key returns the key of the current subscription, including one that is closed and
// waiting to reconnect. It is zero after Close.
func (r *Reconciler) Key() domain.StreamKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key
}

// Open tears down any existing subscription and dials key. ctx bounds the lifetime of
// the subscription and of every automatic reconnect that follows it. A dial failure is
// returned and also schedules a reconnect.
func (r *Reconciler) Open(ctx context.Context, key domain.StreamKey) error {
	r.openMu.Lock()
	defer r.openMu.Unlock()
	return r.openLocked(ctx, key)
}

// Close tears down the subscription and cancels any pending reconnect.
func (r *Reconciler) Close() {
	r.openMu.Lock()
	defer r.openMu.Unlock()

	r.mu.Lock()
	r.cancelReconnect()
	done := r.teardown()
	r.key = domain.StreamKey{}
	r.mu.Unlock()

	waitDone(done)
}

func (r *Reconciler) openLocked(ctx context.Context, key domain.StreamKey) error {
	r.mu.Lock()
	r.cancelReconnect()
	done := r.teardown()
	r.mu.Unlock()

	// No two live subscriptions: wait for the old transport to finish.
	waitDone(done)

	id := uuid.NewString()
	r.mu.Lock()
	r.ctx = ctx
	r.key = key
	r.subID = id
	r.state = StateConnecting
	r.mu.Unlock()

	fields := map[string]interface{}{"stream": key.String(), "subscription": id}
	r.logger.Info(ctx, "Opening kline stream", fields)

	doneCh, stopCh, err := r.streamer.StreamKlines(ctx, key, r.messageHandler(id, key), r.errorHandler(id, key))

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.logger.Warn(ctx, "Kline stream dial failed", map[string]interface{}{
			"stream": key.String(), "subscription": id, "error": err.Error(),
		})
		if r.subID == id {
			r.state = StateClosed
			r.scheduleReconnect()
		}
		return fmt.Errorf("open stream %s: %w", key, err)
	}

	r.state = StateStreaming
	r.stopCh = stopCh
	r.doneCh = doneCh
	go r.watch(id, doneCh)
	return nil
}

// teardown stops the live transport and forgets it. Callers hold mu.
func (r *Reconciler) teardown() <-chan struct{} {
	done := r.doneCh
	if r.stopCh != nil {
		close(r.stopCh)
	}
	r.stopCh = nil
	r.doneCh = nil
	r.subID = ""
	r.state = StateClosed
	return done
}

func waitDone(done <-chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(teardownTimeout):
	}
}

func (r *Reconciler) watch(id string, doneCh <-chan struct{}) {
	<-doneCh

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subID != id {
		return // torn down on purpose
	}
	r.logger.Warn(r.ctx, "Kline stream closed", map[string]interface{}{
		"stream": r.key.String(), "subscription": id, "reconnectIn": r.reconnectDelay.String(),
	})
	r.stopCh = nil
	r.doneCh = nil
	r.state = StateClosed
	r.scheduleReconnect()
}

// scheduleReconnect arms the reconnect task. Callers hold mu.
func (r *Reconciler) scheduleReconnect() {
	if r.ctx != nil && r.ctx.Err() != nil {
		return
	}
	r.cancelReconnect()
	gen := r.reconnectGen
	r.reconnect = time.AfterFunc(r.reconnectDelay, func() { r.reconnectNow(gen) })
}

// cancelReconnect disarms a pending reconnect. Callers hold mu.
func (r *Reconciler) cancelReconnect() {
	r.reconnectGen++
	if r.reconnect != nil {
		r.reconnect.Stop()
		r.reconnect = nil
	}
}

func (r *Reconciler) reconnectNow(gen uint64) {
	// Read the selection before taking any lock: CurrentKey may lock the pipeline.
	var target domain.StreamKey
	if r.currentKey != nil {
		target = r.currentKey()
	}

	r.openMu.Lock()
	defer r.openMu.Unlock()

	r.mu.Lock()
	if gen != r.reconnectGen || r.state != StateClosed || r.ctx == nil || r.ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	ctx := r.ctx
	if target.String() == "" {
		target = r.key
	}
	r.mu.Unlock()

	if target.String() == "" {
		return
	}
	// Errors reschedule inside openLocked.
	_ = r.openLocked(ctx, target)
}

func (r *Reconciler) messageHandler(id string, key domain.StreamKey) func(msg []byte) {
	return func(msg []byte) {
		raw, err := marketdata.DecodeStreamKline(msg)
		if err == nil {
			var c domain.Candle
			if c, err = marketdata.Normalize(raw); err == nil {
				r.deliver(id, key, c)
				return
			}
		}
		r.logger.Warn(context.Background(), "Dropping malformed stream message", map[string]interface{}{
			"stream": key.String(), "subscription": id, "error": err.Error(),
		})
	}
}

func (r *Reconciler) deliver(id string, key domain.StreamKey, c domain.Candle) {
	r.mu.Lock()
	current := r.subID == id
	if current && r.state == StateConnecting {
		r.state = StateStreaming
	}
	r.mu.Unlock()

	if current {
		r.sink.ApplyLive(key, c)
	}
}

func (r *Reconciler) errorHandler(id string, key domain.StreamKey) func(err error) {
	return func(err error) {
		if err == nil {
			return
		}
		// The close that follows drives the reconnect.
		r.logger.Warn(context.Background(), "Kline stream transport error", map[string]interface{}{
			"stream": key.String(), "subscription": id, "error": err.Error(),
		})
	}
}
