package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
)

// RedisSender publishes each event on a pub/sub channel and keeps a capped,
// expiring list of recent events per audience member.
type RedisSender struct {
	client    redis.Cmdable
	channel   string
	inboxSize int
	inboxTTL  time.Duration
}

func NewRedisSender(client redis.Cmdable, channel string, inboxSize int, inboxTTL time.Duration) *RedisSender {
	return &RedisSender{client: client, channel: channel, inboxSize: inboxSize, inboxTTL: inboxTTL}
}

// InboxKey is the list holding a user's recent events, newest first.
func InboxKey(userID string) string {
	return "notify:inbox:" + userID
}

func (s *RedisSender) Send(ctx context.Context, event models.BookingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event on '%s': %w", s.channel, err)
	}

	for _, userID := range event.Audience() {
		key := InboxKey(userID)
		if err := s.client.LPush(ctx, key, payload).Err(); err != nil {
			return fmt.Errorf("failed to store event in inbox '%s': %w", key, err)
		}
		if err := s.client.LTrim(ctx, key, 0, int64(s.inboxSize-1)).Err(); err != nil {
			return fmt.Errorf("failed to trim inbox '%s': %w", key, err)
		}
		if err := s.client.Expire(ctx, key, s.inboxTTL).Err(); err != nil {
			return fmt.Errorf("failed to set expiry on inbox '%s': %w", key, err)
		}
	}
	return nil
}

// Recent returns up to limit of the user's most recent events, newest first.
// Entries that no longer decode are skipped.
func (s *RedisSender) Recent(ctx context.Context, userID string, limit int) ([]models.BookingEvent, error) {
	if limit <= 0 || limit > s.inboxSize {
		limit = s.inboxSize
	}
	raw, err := s.client.LRange(ctx, InboxKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox for %s: %w", userID, err)
	}
	events := make([]models.BookingEvent, 0, len(raw))
	for _, item := range raw {
		var e models.BookingEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
