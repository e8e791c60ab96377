package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
)

// Config configures update dispatch.
type Config struct {
	// MaxConcurrency bounds how many conversations are handled at once.
	MaxConcurrency int `yaml:"max_concurrency" env:"LINKPOST_DISPATCH_MAX_CONCURRENCY"`

	// QueueSize is the per-conversation backlog above which a warning is
	// logged. Updates are never dropped.
	QueueSize int `yaml:"queue_size" env:"LINKPOST_DISPATCH_QUEUE_SIZE"`

	// IdleTimeout retires a conversation worker with nothing to do.
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"LINKPOST_DISPATCH_IDLE_TIMEOUT"`
}

// DefaultConfig returns the default dispatch settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		QueueSize:      32,
		IdleTimeout:    5 * time.Minute,
	}
}

// Handler processes one update.
type Handler interface {
	Handle(ctx context.Context, u channels.Update) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u channels.Update) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, u channels.Update) error { return f(ctx, u) }

// Dispatcher fans updates out to one worker per conversation. Updates of a
// conversation are handled one at a time in arrival order; different
// conversations run concurrently up to MaxConcurrency. Queuing never blocks,
// so a slow conversation cannot hold back the others.
type Dispatcher struct {
	cfg     Config
	handler Handler
	sem     chan struct{}
	logger  *slog.Logger

	// mu guards workers and every conversation's backlog.
	mu      sync.Mutex
	workers map[int64]*conversation
	wg      sync.WaitGroup
}

// conversation is the backlog of one worker.
type conversation struct {
	pending []channels.Update
	wake    chan struct{}
	closed  bool
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config, handler Handler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	return &Dispatcher{
		cfg:     cfg,
		handler: handler,
		sem:     make(chan struct{}, cfg.MaxConcurrency),
		logger:  logger.With("component", "dispatcher"),
		workers: make(map[int64]*conversation),
	}
}

// Run consumes updates until ctx is cancelled or updates is closed, then
// waits for in-flight work to finish.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan channels.Update) error {
	defer d.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, u)
		}
	}
}

// Dispatch appends u to its conversation's backlog, starting a worker if
// needed. It does not block.
func (d *Dispatcher) Dispatch(ctx context.Context, u channels.Update) {
	key := u.ConversationID()

	d.mu.Lock()
	c, ok := d.workers[key]
	if !ok {
		c = &conversation{wake: make(chan struct{}, 1)}
		d.workers[key] = c
		d.wg.Add(1)
		go d.work(ctx, key, c)
	}
	c.pending = append(c.pending, u)
	backlog := len(c.pending)
	d.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	if backlog == d.cfg.QueueSize+1 {
		d.logger.Warn("conversation backlog growing", "conversation", key, "pending", backlog)
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// shutdown lets every worker drain its backlog and exit.
func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	for key, c := range d.workers {
		c.closed = true
		select {
		case c.wake <- struct{}{}:
		default:
		}
		delete(d.workers, key)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// next pops the oldest pending update. done reports a closed, drained
// backlog.
func (d *Dispatcher) next(c *conversation) (u channels.Update, ok, done bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(c.pending) == 0 {
		return channels.Update{}, false, c.closed
	}
	u = c.pending[0]
	c.pending[0] = channels.Update{}
	c.pending = c.pending[1:]
	return u, true, false
}

// retire removes an idle worker. It fails when updates arrived meanwhile.
func (d *Dispatcher) retire(key int64, c *conversation) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(c.pending) > 0 {
		return false
	}
	if d.workers[key] == c {
		delete(d.workers, key)
	}
	return true
}

// work is a conversation's worker loop.
func (d *Dispatcher) work(ctx context.Context, key int64, c *conversation) {
	defer d.wg.Done()
	idle := time.NewTimer(d.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		u, ok, done := d.next(c)
		if done {
			return
		}
		if ok {
			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			d.handle(ctx, key, u)
			<-d.sem
			idle.Reset(d.cfg.IdleTimeout)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-idle.C:
			if d.retire(key, c) {
				return
			}
			idle.Reset(d.cfg.IdleTimeout)
		}
	}
}

// handle runs the handler, isolating panics to the update that caused them.
func (d *Dispatcher) handle(ctx context.Context, key int64, u channels.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("update handler panicked", "conversation", key, "panic", r)
		}
	}()
	if err := d.handler.Handle(ctx, u); err != nil {
		d.logger.Warn("update handling failed", "conversation", key, "error", err)
	}
}
