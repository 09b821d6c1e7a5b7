package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"notification-service/internal/logging"
)

// Publisher appends outbound delivery-outcome events to a Redis Stream.
type Publisher struct {
	rdb    redis.Cmdable
	stream string
	logger *logging.Logger
}

func NewPublisher(rdb redis.Cmdable, stream string, logger *logging.Logger) *Publisher {
	return &Publisher{rdb: rdb, stream: stream, logger: logger}
}

// Publish flattens the event struct into stream entry fields plus a "type"
// discriminator and appends it to the sink stream.
func (p *Publisher) Publish(ctx context.Context, eventType string, event any) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("failed to flatten %s event: %w", eventType, err)
	}

	values := make(map[string]any, len(fields)+1)
	values["type"] = eventType
	for k, v := range fields {
		values[k] = fmt.Sprintf("%v", v)
	}

	if err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	p.logger.Debugf("Published %s event to stream %q", eventType, p.stream)
	return nil
}
