// Package kafka publishes ingest change-feed events for downstream
// consumers that want to react to fresh track data without polling the API.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
)

// messageWriter is the slice of kafka-go's Writer the notifier needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier writes one message per committed snapshot, keyed by the
// snapshot fingerprint so consumers with log compaction keep only the
// latest payload per distinct dataset.
type Notifier struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewNotifier creates a notifier for the given brokers and topic.
func NewNotifier(brokers []string, topic string, clk clockwork.Clock, logger *slog.Logger) *Notifier {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Notifier{writer: writer, clock: clk, logger: logger}
}

// NotifyIngest publishes the committed snapshot.
func (n *Notifier) NotifyIngest(ctx context.Context, hash string, entries []domain.TrackEntry) error {
	value, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(hash),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "entry_count", Value: []byte(strconv.Itoa(len(entries)))},
			{Key: "ingest_time", Value: []byte(n.clock.Now().UTC().Format(time.RFC3339))},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write ingest event: %w", err)
	}
	n.logger.Debug("published ingest event", "fingerprint", hash, "entries", len(entries))
	return nil
}

// Close flushes and closes the underlying writer.
func (n *Notifier) Close() error {
	return n.writer.Close()
}
