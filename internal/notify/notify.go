// Package notify delivers messages to members and the group, one recipient at a time.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookworms/internal/domain"
	"bookworms/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// Message is a rendered notification.
type Message struct {
	Text string
	HTML bool
}

// Text builds an HTML message.
func Text(format string, args ...any) Message {
	return Message{Text: fmt.Sprintf(format, args...), HTML: true}
}

// Transport sends one message to one recipient (a chat or user id).
type Transport interface {
	Send(ctx context.Context, recipient string, msg Message) error
}

var sentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Notification send attempts by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(sentTotal)
}

// Report is the outcome of a multi-recipient notify.
type Report struct {
	Sent    int
	Failed  map[string]error
	Skipped []string
}

// Dispatcher sends messages through a Transport. A failure for one recipient never
// aborts delivery to the others, and no failure is ever returned to the caller's
// state-changing path.
type Dispatcher struct {
	transport Transport
	group     string
	timeout   time.Duration
	delay     time.Duration
	log       *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each send.
func WithTimeout(d time.Duration) Option { return func(x *Dispatcher) { x.timeout = d } }

// WithDelay sets the pause between consecutive sends.
func WithDelay(d time.Duration) Option { return func(x *Dispatcher) { x.delay = d } }

// NewDispatcher creates a dispatcher; group is the group chat recipient.
func NewDispatcher(transport Transport, group string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		group:     group,
		timeout:   10 * time.Second,
		delay:     50 * time.Millisecond, // ~20 msgs/sec
		log:       logger.With("component", "notify"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Send delivers one message. Errors wrap domain.ErrExternalTransport.
func (d *Dispatcher) Send(ctx context.Context, recipient string, msg Message) error {
	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.transport.Send(sctx, recipient, msg); err != nil {
		sentTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: send to %s: %v", domain.ErrExternalTransport, recipient, err)
	}
	sentTotal.WithLabelValues("sent").Inc()
	return nil
}

// Announce posts to the group chat.
func (d *Dispatcher) Announce(ctx context.Context, msg Message) error {
	err := d.Send(ctx, d.group, msg)
	if err != nil {
		d.log.Warn("group announcement failed", "error", err)
	}
	return err
}

// Notify sends msg to each recipient in order. On cancellation the remaining
// recipients are reported as skipped.
func (d *Dispatcher) Notify(ctx context.Context, recipients []string, msg Message) Report {
	rep := Report{Failed: map[string]error{}}
	for i, r := range recipients {
		if ctx.Err() != nil {
			rep.Skipped = append(rep.Skipped, recipients[i:]...)
			sentTotal.WithLabelValues("skipped").Add(float64(len(recipients) - i))
			break
		}
		if err := d.Send(ctx, r, msg); err != nil {
			d.log.Warn("notification failed", "recipient", r, "error", err)
			rep.Failed[r] = err
		} else {
			rep.Sent++
		}

		if d.delay > 0 && i < len(recipients)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(d.delay):
			}
		}
	}
	d.log.Info("notify complete", "sent", rep.Sent, "failed", len(rep.Failed), "skipped", len(rep.Skipped))
	return rep
}
