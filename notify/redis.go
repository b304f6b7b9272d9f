package notify

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/redis.v5"
)

// DefaultRedisKey is the list the history is pushed to.
const DefaultRedisKey = "library-client:notifications"

// RedisHistory keeps the history in a capped redis list so it survives
// between CLI invocations and can be shared by several shells.
type RedisHistory struct {
	client *redis.Client
	key    string
	max    int
}

// NewRedisHistory connects to the redis server at addr ("host:port") and
// verifies it answers.
func NewRedisHistory(addr string, max int) (*RedisHistory, error) {
	if max <= 0 {
		max = DefaultHistorySize
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisHistory{client: client, key: DefaultRedisKey, max: max}, nil
}

// WithKey returns a copy of h that writes to key.
func (h *RedisHistory) WithKey(key string) *RedisHistory {
	cp := *h
	cp.key = key
	return &cp
}

func (h *RedisHistory) Append(n Notification) error {
	value, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(n)
	if err != nil {
		return err
	}

	if err := h.client.LPush(h.key, value).Err(); err != nil {
		return err
	}
	return h.client.LTrim(h.key, 0, int64(h.max-1)).Err()
}

func (h *RedisHistory) Recent(limit int) ([]Notification, error) {
	if limit <= 0 || limit > h.max {
		limit = h.max
	}
	raw, err := h.client.LRange(h.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Notification, 0, len(raw))
	for _, r := range raw {
		var n Notification
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(r, &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Clear removes the history list.
func (h *RedisHistory) Clear() error {
	return h.client.Del(h.key).Err()
}

func (h *RedisHistory) Close() error {
	return h.client.Close()
}
