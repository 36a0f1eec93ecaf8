package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"quiz-match-service/internal/app"
)

// DefaultEventChannel is the pub/sub channel match events travel on.
const DefaultEventChannel = "matches:events"

// EventRelay shares match events between service instances. Events published
// on any instance reach the local feed of every instance, including its own.
type EventRelay struct {
	client  *redis.Client
	local   *app.Feed
	channel string
	log     *slog.Logger
}

func NewEventRelay(client *redis.Client, local *app.Feed, channel string, log *slog.Logger) *EventRelay {
	if channel == "" {
		channel = DefaultEventChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &EventRelay{client: client, local: local, channel: channel, log: log}
}

// Publish sends ev to Redis. When Redis is unreachable the event is still
// delivered locally.
func (r *EventRelay) Publish(ev app.MatchEvent) {
	raw, err := json.Marshal(ev)
	if err == nil {
		err = r.client.Publish(context.Background(), r.channel, raw).Err()
	}
	if err != nil {
		r.log.Warn("relay publish failed, delivering locally", "match", ev.MatchCod, "error", err)
		r.local.Publish(ev)
	}
}

// Run forwards relayed events to the local feed until ctx is done.
func (r *EventRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev app.MatchEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn("dropping malformed match event", "error", err)
				continue
			}
			r.local.Publish(ev)
		}
	}
}
