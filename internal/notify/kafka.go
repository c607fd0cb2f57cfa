package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/aksh-ita757/SMART-MART/pkg/tracing"
)

// Notifier publishes status events without ever blocking or failing the
// caller: events go through a buffered channel to a background writer, and a
// full buffer drops the event with a log line. A missed notification must
// never abort the order transition it describes.
type Notifier struct {
	log    *slog.Logger
	writer *kafka.Writer
	inbox  chan kafka.Message
	done   chan struct{}
}

func NewNotifier(log *slog.Logger, brokers []string, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{
		log: log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TopicOrderStatus,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		inbox: make(chan kafka.Message, buffer),
		done:  make(chan struct{}),
	}
}

// Start runs the writer goroutine until ctx is cancelled, then flushes
// whatever is still buffered.
func (n *Notifier) Start(ctx context.Context) {
	go func() {
		defer close(n.done)
		for {
			select {
			case <-ctx.Done():
				n.drain()
				return
			case msg := <-n.inbox:
				n.write(msg)
			}
		}
	}()
}

// Publish enqueues ev for delivery. Never blocks.
func (n *Notifier) Publish(ctx context.Context, ev StatusEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Error("notify marshal failed", "order_id", ev.OrderID, "err", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.OrderID, 10)),
		Value: payload,
		Headers: tracing.InjectKafkaHeaders(ctx, []kafka.Header{
			{Key: "event_type", Value: []byte("OrderStatusChanged")},
		}),
	}

	select {
	case n.inbox <- msg:
	default:
		n.log.Warn("notification dropped, buffer full", "order_id", ev.OrderID, "status", string(ev.Status))
	}
}

func (n *Notifier) write(msg kafka.Message) {
	if err := n.writer.WriteMessages(context.Background(), msg); err != nil {
		n.log.Error("notification publish failed", "key", string(msg.Key), "err", err)
		return
	}
	n.log.Debug("notification published", "key", string(msg.Key))
}

func (n *Notifier) drain() {
	for {
		select {
		case msg := <-n.inbox:
			n.write(msg)
		default:
			_ = n.writer.Close()
			return
		}
	}
}

// Close waits for the writer goroutine to finish its final flush.
func (n *Notifier) Close() { <-n.done }
