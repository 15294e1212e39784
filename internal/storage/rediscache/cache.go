// Package rediscache caches bill lists of closed periods in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"telephone-billing/internal/bills"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 5 * time.Minute

type BillCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

var _ bills.Cache = (*BillCache)(nil)

// New wraps an existing client; the caller keeps ownership of it.
func New(client redis.Cmdable, ttl time.Duration) *BillCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BillCache{client: client, ttl: ttl, prefix: "bills"}
}

func (c *BillCache) key(subscriber string, p bills.Period) string {
	return fmt.Sprintf("%s:%s:%04d-%02d", c.prefix, subscriber, p.Year, int(p.Month))
}

func (c *BillCache) genKey(subscriber string, p bills.Period) string {
	return c.key(subscriber, p) + ":gen"
}

// genTTL outlives any list stored under the generation.
func (c *BillCache) genTTL() time.Duration { return c.ttl + 24*time.Hour }

// setIfGen stores ARGV[2] at KEYS[2] for ARGV[3] ms when the generation at
// KEYS[1] (missing counts as 0) still equals ARGV[1].
const setIfGen = `
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`

func (c *BillCache) Get(ctx context.Context, subscriber string, p bills.Period) ([]bills.Bill, int64, bool, error) {
	vals, err := c.client.MGet(ctx, c.key(subscriber, p), c.genKey(subscriber, p)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("rediscache: get: %w", err)
	}
	var gen int64
	if raw, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, false, fmt.Errorf("rediscache: generation: %w", err)
		}
	}
	data, ok := vals[0].(string)
	if !ok {
		return nil, gen, false, nil
	}
	var out []bills.Bill
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, gen, false, fmt.Errorf("rediscache: decode: %w", err)
	}
	return out, gen, true, nil
}

// Set stores list unless the entry was invalidated since gen was read.
func (c *BillCache) Set(ctx context.Context, subscriber string, p bills.Period, gen int64, list []bills.Bill) error {
	if list == nil {
		list = []bills.Bill{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("rediscache: encode: %w", err)
	}
	err = c.client.Eval(ctx, setIfGen,
		[]string{c.genKey(subscriber, p), c.key(subscriber, p)},
		strconv.FormatInt(gen, 10), string(data), strconv.FormatInt(c.ttl.Milliseconds(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("rediscache: set: %w", err)
	}
	return nil
}

// Invalidate advances the generation and drops the stored list.
func (c *BillCache) Invalidate(ctx context.Context, subscriber string, p bills.Period) error {
	gk := c.genKey(subscriber, p)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, c.genTTL())
		pipe.Del(ctx, c.key(subscriber, p))
		return nil
	})
	if err != nil {
		return fmt.Errorf("rediscache: invalidate: %w", err)
	}
	return nil
}
