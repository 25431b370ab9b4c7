package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-price-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypePricesScraped is published for every price outcome
	EventTypePricesScraped EventType = "PRODUCT_PRICES_SCRAPED"
	// EventTypeAvailabilityChecked is published for every availability outcome
	EventTypeAvailabilityChecked EventType = "PRODUCT_AVAILABILITY_CHECKED"
)

const (
	DefaultPriceStream        = "stream:product_prices"
	DefaultAvailabilityStream = "stream:product_availability"

	source = "catalog-price-scraper"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Envelope is the JSON document stored in the stream entry's data field.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	URL       string          `json:"url"`
	Succeeded bool            `json:"succeeded"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}

type Config struct {
	PriceStream        string
	AvailabilityStream string
	// MaxLen trims each stream approximately. Zero keeps everything.
	MaxLen int64
}

// Publisher appends scrape outcomes to Redis streams.
type Publisher struct {
	redis  RedisClient
	config Config
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(client RedisClient, config Config, logger *slog.Logger) *Publisher {
	if config.PriceStream == "" {
		config.PriceStream = DefaultPriceStream
	}
	if config.AvailabilityStream == "" {
		config.AvailabilityStream = DefaultAvailabilityStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:  client,
		config: config,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

func (p *Publisher) PublishPrices(ctx context.Context, outcome models.ScrapeOutcome) error {
	return p.publish(ctx, p.config.PriceStream, EventTypePricesScraped, outcome.URL, outcome.Succeeded(), outcome)
}

func (p *Publisher) PublishAvailability(ctx context.Context, outcome models.AvailabilityOutcome) error {
	// An unavailable verdict is still a result.
	return p.publish(ctx, p.config.AvailabilityStream, EventTypeAvailabilityChecked, outcome.URL, true, outcome)
}

func (p *Publisher) publish(ctx context.Context, stream string, eventType EventType, url string, succeeded bool, outcome any) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	env := Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: p.now().UTC(),
		URL:       url,
		Succeeded: succeeded,
		Source:    source,
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":       string(data),
			"event_id":   env.EventID,
			"event_type": string(eventType),
			"url":        url,
			"timestamp":  fmt.Sprintf("%d", env.Timestamp.UnixNano()),
		},
	}
	if p.config.MaxLen > 0 {
		args.MaxLen = p.config.MaxLen
		args.Approx = true
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("outcome published", "stream", stream, "event_type", eventType, "url", url, "stream_id", id)
	return nil
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}
