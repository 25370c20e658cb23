package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/triviad/internal/errors"
)

// Redis bridges to the chat gateway over redis pub/sub. The gateway
// subscribes to channel and user keys for outbound delivery, and publishes
// inbound opt-ins and answer picks on per-channel keys. Display names are
// mirrored into a hash keyed by user ID.
type Redis struct {
	rc     redis.UniversalClient
	prefix string
}

type RedisConfig struct {
	Client redis.UniversalClient
	Prefix string
}

func NewRedis(c RedisConfig) *Redis {
	return &Redis{
		rc:     c.Client,
		prefix: c.Prefix,
	}
}

func (r *Redis) Announce(ctx context.Context, channelID string, msg Message) error {
	return r.publish(ctx, r.key("channel", channelID), msg)
}

// SendPrivate publishes to the user's key. Zero receivers means the user's
// private channel is not reachable (blocked DMs, departed member) and is
// reported as an error for the caller to skip.
func (r *Redis) SendPrivate(ctx context.Context, userID string, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chat: marshal message: %v", err)
	}

	n, err := r.rc.Publish(ctx, r.key("user", userID), b).Result()
	if err != nil {
		return fmt.Errorf("chat: publish private: %w", err)
	}
	if n == 0 {
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("chat: user %s unreachable", userID))
	}

	return nil
}

func (r *Redis) AwaitSelections(ctx context.Context, channelID string) (<-chan Selection, error) {
	ps := r.rc.Subscribe(ctx, r.key("selections", channelID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("chat: subscribe selections: %w", err)
	}

	out := make(chan Selection)
	go func() {
		defer close(out)
		defer ps.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ps.Channel():
				if !ok {
					return
				}

				var sel Selection
				if err := json.Unmarshal([]byte(m.Payload), &sel); err != nil {
					slog.WarnContext(ctx, "chat: drop malformed selection",
						"channel", channelID, "error", err)
					continue
				}

				select {
				case out <- sel:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *Redis) CollectOptIns(ctx context.Context, channelID string, window time.Duration) ([]Member, error) {
	ps := r.rc.Subscribe(ctx, r.key("optin", channelID))
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return nil, fmt.Errorf("chat: subscribe optin: %w", err)
	}

	var (
		members []Member
		seen    = make(map[string]bool)
		timer   = time.NewTimer(window)
	)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return members, ctx.Err()
		case <-timer.C:
			return members, nil
		case m, ok := <-ps.Channel():
			if !ok {
				return members, nil
			}

			var mem Member
			if err := json.Unmarshal([]byte(m.Payload), &mem); err != nil {
				slog.WarnContext(ctx, "chat: drop malformed optin",
					"channel", channelID, "error", err)
				continue
			}
			if mem.ID == "" || seen[mem.ID] {
				continue
			}
			seen[mem.ID] = true
			members = append(members, mem)

			if err := r.rc.HSet(ctx, r.key("names"), mem.ID, mem.Name).Err(); err != nil {
				slog.WarnContext(ctx, "chat: store display name failed",
					"user", mem.ID, "error", err)
			}
		}
	}
}

func (r *Redis) DisplayName(ctx context.Context, userID string) (string, error) {
	name, err := r.rc.HGet(ctx, r.key("names"), userID).Result()
	if err == redis.Nil {
		return "", errors.New(errors.CodeNotFound,
			errors.WithMessagef("chat: unknown user %s", userID))
	}
	if err != nil {
		return "", fmt.Errorf("chat: resolve display name: %w", err)
	}

	return name, nil
}

func (r *Redis) publish(ctx context.Context, key string, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chat: marshal message: %v", err)
	}

	if err := r.rc.Publish(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("chat: publish: %w", err)
	}

	return nil
}

func (r *Redis) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}
