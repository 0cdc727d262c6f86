// Package dispatcher routes device and operator commands such as :POINT:
// or :PROCESS: to their handlers, optionally through buffered workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fieldtrack/trackcheck/internal/dispatcher"

var (
	// ErrClosed is returned when dispatching to a buffered handler after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownCommand is returned for commands without a handler.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrTooFewArgs is returned when an event fails its MinArgs check.
	ErrTooFewArgs = errors.New("too few arguments")
	// ErrQueueFull is returned by non-blocking buffered handlers under backpressure.
	ErrQueueFull = errors.New("queue full")
)

// Event is one command received from a device gateway, the HTTP API or the CLI.
type Event struct {
	Command   string
	Args      []string
	Source    string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// KeyFunc picks the shard key of an event, typically the subject id.
type KeyFunc func(Event) string

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
	minArgs    int
	workers    int
	key        KeyFunc
}

// Buffered makes the handler async with a queue of the given size per worker.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// MinArgs rejects events with fewer than n args before they are queued.
func MinArgs(n int) Option {
	return func(o *options) { o.minArgs = n }
}

// Sharded spreads a buffered handler over n workers. Events with the same
// key always land on the same worker, so per-key order is kept.
func Sharded(n int, key KeyFunc) Option {
	return func(o *options) {
		o.workers = n
		o.key = key
	}
}

// FirstArg keys events by their first argument.
func FirstArg(e Event) string {
	if len(e.Args) == 0 {
		return ""
	}
	return e.Args[0]
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	queued  metric.Int64ObservableGauge
	handled metric.Int64Counter
	dropped metric.Int64Counter

	// guards buffers and closed; senders hold the read lock
	mu      sync.RWMutex
	buffers map[string][]chan Event
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter provider.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string][]chan Event),
		logger:   logger,
	}

	m := otel.Meter(instrumentationName)
	var err error

	d.queued, err = m.Int64ObservableGauge("trackcheck.commands.queued",
		metric.WithDescription("Commands waiting in buffered handlers"))
	if err != nil {
		return nil, fmt.Errorf("creating queued gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range d.QueueLengths() {
			o.ObserveInt64(d.queued, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, d.queued)
	if err != nil {
		return nil, fmt.Errorf("registering queued callback: %w", err)
	}

	d.handled, err = m.Int64Counter("trackcheck.commands.handled",
		metric.WithDescription("Buffered commands handled"))
	if err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}
	d.dropped, err = m.Int64Counter("trackcheck.commands.dropped",
		metric.WithDescription("Buffered commands dropped on a full queue"))
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for command. Handlers must be registered before
// events are dispatched.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	o := &options{workers: 1}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 || o.key == nil {
		o.workers = 1
	}

	handler := h
	if o.bufferSize > 0 {
		handler = d.withBuffer(command, o, handler)
	}
	if o.minArgs > 0 {
		handler = withMinArgs(o.minArgs, handler)
	}
	if o.logged {
		handler = d.withLogging(command, handler)
	}
	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

// QueueLengths returns the number of pending events per buffered command,
// summed over its workers.
func (d *Dispatcher) QueueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.buffers))
	for cmd, shards := range d.buffers {
		n := 0
		for _, ch := range shards {
			n += len(ch)
		}
		out[cmd] = n
	}
	return out
}

// Close stops accepting buffered events and waits until every queued
// event has been handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, shards := range d.buffers {
		for _, ch := range shards {
			close(ch)
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func withMinArgs(n int, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		if len(e.Args) < n {
			return nil, fmt.Errorf("%w: %s expects at least %d, got %d", ErrTooFewArgs, e.Command, n, len(e.Args))
		}
		return h(e)
	}
}

func shardOf(key string, n int) int {
	if n == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (d *Dispatcher) withBuffer(command string, o *options, h HandlerFunc) HandlerFunc {
	shards := make([]chan Event, o.workers)
	for i := range shards {
		shards[i] = make(chan Event, o.bufferSize)
	}

	d.mu.Lock()
	d.buffers[command] = shards
	d.mu.Unlock()

	cmdAttr := metric.WithAttributes(attribute.String("command", command))
	for _, ch := range shards {
		d.wg.Add(1)
		go func(ch <-chan Event) {
			defer d.wg.Done()
			for e := range ch {
				if _, err := h(e); err != nil {
					d.logger.Error("buffered event failed", "command", command, "source", e.Source, "error", err)
				}
				d.handled.Add(context.Background(), 1, cmdAttr)
			}
		}(ch)
	}

	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}
		ch := shards[0]
		if o.key != nil {
			ch = shards[shardOf(o.key(e), len(shards))]
		}
		if o.blocking {
			ch <- e
			return "queued", nil
		}
		select {
		case ch <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, cmdAttr)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "source", e.Source, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "source", e.Source, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}
