// Package notify implements the notification dispatcher consumed by the
// workflow coordinator. Delivery is a fire-and-forget side channel: the
// coordinator logs and swallows dispatch errors, so implementations only
// need to report failure, never to retry.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"residency-training-server/internal/workflow"
)

const dispatchTimeout = 5 * time.Second

// ConsoleDispatcher logs events instead of delivering them. Default in
// development.
type ConsoleDispatcher struct {
	Log *zap.Logger
}

func NewConsoleDispatcher(log *zap.Logger) *ConsoleDispatcher {
	return &ConsoleDispatcher{Log: log}
}

func (d *ConsoleDispatcher) Emit(ctx context.Context, event workflow.Event) error {
	d.Log.Info("domain event",
		zap.String("type", event.Type),
		zap.String("record", event.ProgressRecordID),
		zap.String("actor", event.ActorID))
	return nil
}

// RedisDispatcher publishes events as JSON on a redis channel consumed by
// the external notification service.
type RedisDispatcher struct {
	Client  *redis.Client
	Channel string
}

func NewRedisDispatcher(client *redis.Client, channel string) *RedisDispatcher {
	return &RedisDispatcher{Client: client, Channel: channel}
}

func (d *RedisDispatcher) Emit(ctx context.Context, event workflow.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	return d.Client.Publish(ctx, d.Channel, payload).Err()
}

// WebhookDispatcher posts events to an external notification endpoint.
type WebhookDispatcher struct {
	client *resty.Client
	url    string
}

func NewWebhookDispatcher(url string) *WebhookDispatcher {
	return &WebhookDispatcher{
		client: resty.New().SetTimeout(dispatchTimeout),
		url:    url,
	}
}

func (d *WebhookDispatcher) Emit(ctx context.Context, event workflow.Event) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		Post(d.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("notification endpoint returned %s", resp.Status())
	}
	return nil
}
