package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/image-converter/internal/config"
	"github.com/aliskhannn/image-converter/internal/model"
)

// Producer publishes conversion events to Kafka.
type Producer struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a new Producer.
// - cfg: Kafka configuration struct
// - s: retry strategy
func New(
	cfg *config.Kafka,
	s retry.Strategy,
) *Producer {
	producer := wbfkafka.NewProducer(cfg.Brokers, cfg.Topic)

	return &Producer{
		Client:   producer,
		cfg:      cfg,
		strategy: s,
	}
}

// Publish serializes the Conversion to JSON and sends it to Kafka.
// Events for the same logical image share a key, so consumers see them
// in order.
func (p *Producer) Publish(ctx context.Context, c model.Conversion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion: %w", err)
	}

	if err = p.Client.SendWithRetry(ctx, p.strategy, Key(c), data); err != nil {
		return fmt.Errorf("failed to send conversion to %s: %w", p.cfg.Topic, err)
	}

	return nil
}

// Key is the partition key of a conversion event.
func Key(c model.Conversion) []byte {
	return []byte(path.Join(c.Path, c.LogicalName))
}
