// Package redisstore stores copilot conversation history in Redis lists.
package redisstore

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/roofgenius/internal/domain/copilot"
)

const keyPrefix = "copilot:history:"

var _ copilot.History = (*History)(nil)

// HistoryConfig bounds stored conversations.
type HistoryConfig struct {
	// MaxMessages is the list length kept per session.
	MaxMessages int64
	// TTL expires idle sessions.
	TTL time.Duration
}

// History implements copilot.History with one capped list per session.
type History struct {
	rdb    redis.UniversalClient
	maxLen int64
	ttl    time.Duration
}

// NewHistory creates a History on rdb.
func NewHistory(rdb redis.UniversalClient, cfg HistoryConfig) *History {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 50
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &History{rdb: rdb, maxLen: cfg.MaxMessages, ttl: cfg.TTL}
}

// Recent returns up to n of the newest messages, oldest first.
func (h *History) Recent(ctx context.Context, sessionID string, n int) ([]copilot.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := h.rdb.LRange(ctx, keyPrefix+sessionID, int64(-n), -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "lrange")
	}
	out := make([]copilot.Message, 0, len(vals))
	for _, v := range vals {
		m, err := decodeMessage([]byte(v))
		if err != nil {
			return nil, errors.Wrap(err, "decode message")
		}
		out = append(out, m)
	}
	return out, nil
}

// Append pushes messages, trims the list and refreshes its TTL atomically.
func (h *History) Append(ctx context.Context, sessionID string, msgs ...copilot.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	key := keyPrefix + sessionID
	vals := make([]any, len(msgs))
	for i, m := range msgs {
		vals[i] = encodeMessage(m)
	}
	_, err := h.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, vals...)
		p.LTrim(ctx, key, -h.maxLen, -1)
		p.Expire(ctx, key, h.ttl)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "append history")
	}
	return nil
}

func encodeMessage(m copilot.Message) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("role", func(e *jx.Encoder) { e.Str(m.Role) })
		e.Field("content", func(e *jx.Encoder) { e.Str(m.Content) })
	})
	return e.Bytes()
}

func decodeMessage(b []byte) (copilot.Message, error) {
	var m copilot.Message
	err := jx.DecodeBytes(b).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "role":
			v, err := d.Str()
			m.Role = v
			return err
		case "content":
			v, err := d.Str()
			m.Content = v
			return err
		default:
			return d.Skip()
		}
	})
	return m, err
}

// Ping checks connectivity.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	return rdb.Ping(ctx).Err()
}
