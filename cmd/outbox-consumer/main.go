package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/greenfelt/casino/internal/infra"
)

// Consumes the ledger event streams and logs them. Downstream systems
// (reporting, CRM) attach their own consumer groups to the same topics.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	topics := []string{
		"casino.wallet.transaction.posted",
		"casino.wallet.session.launched",
		"casino.wallet.session.ended",
	} // must match the poller's "casino.<aggregate>.<event>" scheme
	if s := os.Getenv("CONSUMER_TOPICS"); s != "" {
		topics = strings.Split(s, ",")
	}

	groupID := os.Getenv("CONSUMER_GROUP")
	if groupID == "" {
		groupID = "casino-ledger-audit"
	}

	errCh := make(chan error, len(topics))
	for _, topic := range topics {
		consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topic, groupID, true, logger)
		if !consumer.Enabled() {
			return fmt.Errorf("kafka consumer for %s not enabled; set KAFKA_BROKERS", topic)
		}
		defer consumer.Close()

		go func(topic string, c *infra.KafkaConsumer) {
			errCh <- consume(ctx, topic, c, logger)
		}(topic, consumer)
	}

	logger.Info("outbox-consumer started", "topics", topics, "group", groupID)

	select {
	case <-ctx.Done():
		logger.Info("outbox-consumer shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func consume(ctx context.Context, topic string, c *infra.KafkaConsumer, logger *slog.Logger) error {
	for {
		msg, err := c.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", topic, err)
		}

		var envelope struct {
			EventID       string          `json:"event_id"`
			AggregateType string          `json:"aggregate_type"`
			AggregateID   string          `json:"aggregate_id"`
			EventType     string          `json:"event_type"`
			Payload       json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			logger.Warn("malformed event", "topic", topic, "offset", msg.Offset, "error", err)
			continue
		}

		logger.Info("ledger event",
			"topic", topic,
			"event_id", envelope.EventID,
			"event_type", envelope.EventType,
			"aggregate_id", envelope.AggregateID,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
	}
}
