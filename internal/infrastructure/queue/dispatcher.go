package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/projectcamp/auth-service/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	sendTimeout    = 30 * time.Second
)

// Dispatcher hands notifications to a fixed set of workers, sharding on the
// recipient so mails to one address go out in the order they were queued.
// It implements ports.Notifier; delivery happens through a ports.Mailer.
type Dispatcher struct {
	workers []chan ports.Notification
	mailer  ports.Mailer
	metrics *Metrics
	log     zerolog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

var _ ports.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used. A nil m records into
// unregistered collectors.
func NewDispatcher(numWorkers int, mailer ports.Mailer, m *Metrics, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	d := &Dispatcher{
		workers: make([]chan ports.Notification, numWorkers),
		mailer:  mailer,
		metrics: m,
		log:     log.With().Str("component", "notifier").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.Notification, channelBuffer)
	}
	return d
}

// Start launches the worker goroutines. Workers drain their queue and exit
// on Shutdown; ctx bounds each delivery.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Notify queues n for delivery without blocking. A full queue or a
// dispatcher that is shutting down drops n.
func (d *Dispatcher) Notify(_ context.Context, n ports.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.metrics.DroppedTotal.Inc()
		d.log.Warn().Str("recipient", n.Recipient).Msg("notifier closed, notification dropped")
		return
	}

	idx := d.shardIndex(n.Recipient)
	select {
	case d.workers[idx] <- n:
		d.metrics.QueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		d.metrics.DroppedTotal.Inc()
		d.log.Warn().
			Str("recipient", n.Recipient).
			Int("worker_id", idx).
			Msg("notification queue full, notification dropped")
	}
}

// Shutdown stops accepting notifications and waits until every queued one
// has been attempted, or ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *Dispatcher) shardIndex(recipient string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipient))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.Notification) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for n := range ch {
		d.metrics.QueueDepth.WithLabelValues(label).Set(float64(len(ch)))
		d.deliver(ctx, id, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, id int, n ports.Notification) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	start := time.Now()
	err := d.mailer.Send(sendCtx, n)
	result := "ok"
	if err != nil {
		result = "error"
		d.log.Error().Err(err).
			Str("recipient", n.Recipient).
			Str("subject", n.Subject).
			Int("worker_id", id).
			Msg("notification delivery failed")
	}
	d.metrics.SentTotal.WithLabelValues(result).Inc()
	d.metrics.DeliveryDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
