package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/viralforge/porter-dispatch/internal/metrics"
)

// ErrQueueFull is returned when the dispatcher cannot accept another message.
var ErrQueueFull = errors.New("notification queue full")

type Message struct {
	Destination string
	Subject     string
	Body        string
}

// Sender is the synchronous delivery channel behind the dispatcher.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher queues notifications and delivers them from a fixed worker pool so
// request paths never block on a mail relay.
type Dispatcher struct {
	logger      *slog.Logger
	sender      Sender
	queue       chan Message
	workers     int
	sendTimeout time.Duration
}

type DispatcherOptions struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

func NewDispatcher(logger *slog.Logger, sender Sender, opts DispatcherOptions) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		logger:      logger,
		sender:      sender,
		queue:       make(chan Message, opts.QueueSize),
		workers:     opts.Workers,
		sendTimeout: opts.SendTimeout,
	}
}

// Notify enqueues the message without waiting for delivery.
func (d *Dispatcher) Notify(ctx context.Context, destination, subject, body string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return fmt.Errorf("notification destination is required")
	}
	msg := Message{Destination: destination, Subject: subject, Body: body}
	select {
	case d.queue <- msg:
		return nil
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		d.logger.WarnContext(ctx, "notification dropped",
			"module", "notify.dispatcher",
			"layer", "adapter",
			"operation", "enqueue",
			"outcome", "failure",
			"destination", destination,
			"error", ErrQueueFull,
		)
		return ErrQueueFull
	}
}

// Run drains the queue with the configured worker count until ctx is done.
// Messages still queued at shutdown are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.deliver(ctx, worker, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, msg Message) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	if err := d.sender.Send(sendCtx, msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		d.logger.ErrorContext(ctx, "notification delivery failed",
			"module", "notify.dispatcher",
			"layer", "adapter",
			"operation", "send",
			"outcome", "failure",
			"worker", worker,
			"destination", msg.Destination,
			"error", err,
		)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}

// Pending reports how many messages are waiting for a worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
