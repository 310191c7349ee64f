// Package redis publishes committed audit events and notifications to a
// Redis stream.
package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"

	"whalewatcher/pkg/domain"
)

// Stream entry kinds.
const (
	KindAudit        = "audit"
	KindNotification = "notification"
)

// Config describes the target stream.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// NewClient connects to the configured server.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Publisher appends one stream entry per event. Entries carry the kind, the
// case id and the JSON encoded record under "data".
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewPublisher returns a publisher writing to stream. maxLen caps the stream
// approximately; zero leaves it unbounded.
func NewPublisher(client *redis.Client, stream string, maxLen int64) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

// Ping checks connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// PublishAudit implements core.EventPublisher.
func (p *Publisher) PublishAudit(ctx context.Context, event domain.AuditEvent) error {
	_, err := p.add(ctx, KindAudit, event.CaseID, event)
	return err
}

// PublishNotification implements core.EventPublisher.
func (p *Publisher) PublishNotification(ctx context.Context, n domain.Notification) error {
	_, err := p.add(ctx, KindNotification, n.CaseID, n)
	return err
}

func (p *Publisher) add(ctx context.Context, kind, caseID string, record any) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", kind, err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"kind":    kind,
			"case_id": caseID,
			"data":    string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}
