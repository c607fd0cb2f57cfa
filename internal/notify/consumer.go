package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aksh-ita757/SMART-MART/pkg/tracing"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Relay consumes status events from Kafka and republishes them on a per-buyer
// Redis channel, where realtime gateways subscribe to push updates to clients.
// Delivery is at-least-once; a duplicate status on a live channel is harmless.
type Relay struct {
	log    *slog.Logger
	reader *kafka.Reader
	rdb    *redis.Client
	tracer trace.Tracer
}

func NewRelay(log *slog.Logger, brokers []string, group string, rdb *redis.Client) *Relay {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   TopicOrderStatus,
		GroupID: group,
	})
	return &Relay{
		log:    log,
		reader: r,
		rdb:    rdb,
		tracer: otel.Tracer("notify-relay"),
	}
}

// BuyerChannel is the Redis pub/sub channel carrying a buyer's status events.
func BuyerChannel(buyerID int64) string {
	return fmt.Sprintf("notify:buyer:%d", buyerID)
}

func (r *Relay) Run(ctx context.Context) error {
	defer r.reader.Close()

	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		msgCtx, span := r.tracer.Start(msgCtx, "RelayStatusEvent")

		var ev StatusEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			r.log.Error("unmarshal failed", "err", err)
			span.End()
			_ = r.reader.CommitMessages(ctx, msg)
			continue
		}

		if err := r.rdb.Publish(msgCtx, BuyerChannel(ev.BuyerID), msg.Value).Err(); err != nil {
			r.log.Error("relay publish failed", "order_id", ev.OrderID, "err", err)
		} else {
			r.log.Info("status relayed", "order_id", ev.OrderID, "buyer_id", ev.BuyerID, "status", ev.Status)
		}
		span.End()
		_ = r.reader.CommitMessages(ctx, msg)
	}
}
