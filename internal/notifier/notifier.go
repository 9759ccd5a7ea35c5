// Package notifier sends project and report change notifications to
// Slack, Microsoft Teams and email.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/ivvboard/internal/metrics"
	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
)

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the notifier name (e.g., "email", "slack").
	Name() string
	// Send delivers a notification.
	Send(ctx context.Context, n *Notification) error
	// Close releases any resources.
	Close() error
}

// ProjectLookup resolves the project an event belongs to.
type ProjectLookup interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
}

// ErrRateLimited is returned when a notification is dropped due to rate limiting.
var ErrRateLimited = errors.New("notification rate limited")

// DefaultEvents are the event types notified when none are configured.
var DefaultEvents = []watch.EventType{watch.ReportCreated, watch.ReportUpdated}

const (
	defaultQueueSize    = 64
	defaultSendTimeout  = 30 * time.Second
	defaultRetryBackoff = 2 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	Events      []watch.EventType // empty means DefaultEvents
	QueueSize   int
	SendTimeout time.Duration
	RateLimit   RateLimitConfig
}

// Dispatcher fans notifications out to the registered notifiers. It
// implements watch.Publisher: events are queued without blocking and
// delivered by Run.
type Dispatcher struct {
	mu           sync.RWMutex
	notifiers    map[string]Notifier
	rateLimiter  *RateLimiter
	projects     ProjectLookup
	events       map[watch.EventType]bool
	queue        chan watch.Event
	sendTimeout  time.Duration
	retryBackoff time.Duration
}

// NewDispatcher creates a dispatcher. projects may be nil, in which case
// report notifications fall back to the project ID.
func NewDispatcher(projects ProjectLookup, opts Options) *Dispatcher {
	if len(opts.Events) == 0 {
		opts.Events = DefaultEvents
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}

	events := make(map[watch.EventType]bool, len(opts.Events))
	for _, e := range opts.Events {
		events[e] = true
	}

	return &Dispatcher{
		notifiers:    make(map[string]Notifier),
		rateLimiter:  NewRateLimiter(opts.RateLimit),
		projects:     projects,
		events:       events,
		queue:        make(chan watch.Event, opts.QueueSize),
		sendTimeout:  opts.SendTimeout,
		retryBackoff: defaultRetryBackoff,
	}
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// Len returns the number of registered notifiers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.notifiers)
}

// Publish queues ev for delivery if its type is enabled. A full queue drops
// the event rather than stalling the write that produced it.
func (d *Dispatcher) Publish(_ context.Context, ev watch.Event) error {
	if !d.events[ev.Type] {
		return nil
	}
	select {
	case d.queue <- ev:
	default:
		metrics.NotificationsTotal.WithLabelValues("queue", "dropped").Inc()
		zap.L().Warn("notification queue full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("project_id", ev.ProjectID),
		)
	}
	return nil
}

// Run delivers queued events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.queue:
			if err := d.handle(ctx, ev); err != nil && !errors.Is(err, ErrRateLimited) {
				zap.L().Warn("notification failed",
					zap.String("type", string(ev.Type)),
					zap.String("project_id", ev.ProjectID),
					zap.Error(err),
				)
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev watch.Event) error {
	var project *models.Project
	if d.projects != nil && ev.ProjectID != "" {
		p, err := d.projects.GetByID(ctx, ev.ProjectID)
		if err != nil {
			return fmt.Errorf("load project: %w", err)
		}
		project = p
	}

	n, err := FromEvent(ev, project)
	if err != nil {
		return err
	}
	return d.Dispatch(ctx, n)
}

// Dispatch sends n to every registered notifier concurrently. Returns ErrRateLimited if
// the notification is dropped due to rate limiting. The rate limit token is
// refunded when every notifier fails.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) error {
	if !d.rateLimiter.Allow() {
		metrics.NotificationsTotal.WithLabelValues("all", "rate_limited").Inc()
		return ErrRateLimited
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.notifiers) == 0 {
		d.rateLimiter.Release()
		return nil
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for name, notifier := range d.notifiers {
		g.Go(func() error {
			err := d.send(ctx, notifier, n)
			if err != nil {
				metrics.NotificationsTotal.WithLabelValues(name, "failure").Inc()
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				return nil
			}
			metrics.NotificationsTotal.WithLabelValues(name, "success").Inc()
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == len(d.notifiers) {
		d.rateLimiter.Release()
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %w", errors.Join(errs...))
	}
	return nil
}

// maxRetryWait caps how long a throttled webhook delays its single retry.
const maxRetryWait = 10 * time.Second

// send delivers n through one channel, retrying once when the channel
// reports a temporary webhook failure.
func (d *Dispatcher) send(ctx context.Context, notifier Notifier, n *Notification) error {
	attempt := func() error {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
		return notifier.Send(sendCtx, n)
	}

	err := attempt()
	var werr *WebhookError
	if err == nil || !errors.As(err, &werr) || !werr.Temporary() {
		return err
	}

	wait := min(max(werr.RetryAfter, d.retryBackoff), maxRetryWait)
	zap.L().Debug("retrying notification",
		zap.String("channel", notifier.Name()),
		zap.Int("status", werr.Status),
		zap.Duration("wait", wait),
	)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	case <-timer.C:
	}
	return attempt()
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	return d.rateLimiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
