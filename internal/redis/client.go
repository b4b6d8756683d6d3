// Package redis remembers recent deliveries and keeps the dead-letter list.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"pkg.mon.icu/oracle/internal/reconcile"
	"pkg.mon.icu/oracle/internal/storage/entity"
	"pkg.mon.icu/oracle/internal/util"
)

const (
	DeadLetterKey   = "oracle:dlq"
	DefaultDedupTTL = time.Minute

	seenKeyPrefix = "oracle:seen"
)

type Client struct {
	rdb      *redis.Client
	dedupTTL time.Duration
}

func New(dsn string, dedupTTL time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.ConnMaxIdleTime = 5 * time.Minute

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return NewFromClient(rdb, dedupTTL), nil
}

func NewFromClient(rdb *redis.Client, dedupTTL time.Duration) *Client {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	return &Client{rdb: rdb, dedupTTL: dedupTTL}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// seenKey identifies a record by kind and id. Its value is the content hash of the latest
// delivery, so only a repeat of the latest content is a re-delivery.
func seenKey(r entity.Record) string {
	return fmt.Sprintf("%s:%s:%s", seenKeyPrefix, r.Kind(), util.FormatSnowflake(r.RecordID()))
}

func contentHash(r entity.Record) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("couldn't encode %s %d: %w", r.Kind(), r.RecordID(), err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b)), nil
}

// Seen records r as the latest delivery of its id and reports whether the delivery before it,
// within the dedup TTL, had the same content. A record changed back to an earlier state is
// not seen.
func (c *Client) Seen(ctx context.Context, r entity.Record) (bool, error) {
	hash, err := contentHash(r)
	if err != nil {
		return false, err
	}
	prev, err := c.rdb.SetArgs(ctx, seenKey(r), hash, redis.SetArgs{TTL: c.dedupTTL, Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return prev == hash, nil
}

// forgetScript deletes the key only while it still holds the given hash.
var forgetScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Forget drops the mark left by Seen so that a failed delivery can be retried. A later
// delivery recorded in the meantime is kept.
func (c *Client) Forget(ctx context.Context, r entity.Record) error {
	hash, err := contentHash(r)
	if err != nil {
		return err
	}
	return forgetScript.Run(ctx, c.rdb, []string{seenKey(r)}, hash).Err()
}

// DeadLetter is a failed reconciliation kept for reprocessing.
type DeadLetter struct {
	RunID string           `json:"run_id,omitempty"`
	Kind  entity.Kind      `json:"kind"`
	ID    entity.Snowflake `json:"id,string"`
	Error string           `json:"error"`
	At    time.Time        `json:"at"`
}

func newDeadLetter(runID string, res reconcile.Result, at time.Time) DeadLetter {
	dl := DeadLetter{RunID: runID, Kind: res.Kind, ID: res.ID, At: at.UTC()}
	if res.Err != nil {
		dl.Error = res.Err.Error()
	}
	return dl
}

func (c *Client) PushDeadLetter(ctx context.Context, runID string, res reconcile.Result) error {
	b, err := json.Marshal(newDeadLetter(runID, res, time.Now()))
	if err != nil {
		return err
	}
	return c.rdb.LPush(ctx, DeadLetterKey, b).Err()
}

// DeadLetters returns up to n of the most recent dead letters, newest first.
func (c *Client) DeadLetters(ctx context.Context, n int64) ([]DeadLetter, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := c.rdb.LRange(ctx, DeadLetterKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]DeadLetter, 0, len(raw))
	for _, s := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(s), &dl); err != nil {
			return nil, fmt.Errorf("couldn't decode dead letter: %w", err)
		}
		out = append(out, dl)
	}
	return out, nil
}
