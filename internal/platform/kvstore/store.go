package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

// ErrMiss is returned when a key, field or list element does not exist.
var ErrMiss = errors.New("kvstore: miss")

// Store is the key-value / pub-sub surface the recommendation services need.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	GetJSON(ctx context.Context, key string, out any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	// HIncrByThreshold increments field by one in a single round trip. The
	// first increment sets ttl on key; reaching threshold deletes the field
	// and reports reached.
	HIncrByThreshold(ctx context.Context, key, field string, threshold int64, ttl time.Duration) (n int64, reached bool, err error)

	LPush(ctx context.Context, key string, values ...string) error
	RPush(ctx context.Context, key string, values ...string) error
	RPop(ctx context.Context, key string) (string, error)
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) (string, string, error)
	LLen(ctx context.Context, key string) (int64, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (*Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

type Options struct {
	Addr      string
	Password  string
	DB        int
	OpTimeout time.Duration
}

// Client is the go-redis backed Store. Every call runs under OpTimeout so a
// slow or absent broker surfaces as an error instead of a hang.
type Client struct {
	rdb       *goredis.Client
	opTimeout time.Duration
	log       *logger.Logger
}

// New builds a client. go-redis dials lazily, so construction succeeds even
// when the broker is down; the first command reports the failure.
func New(opts Options, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  opts.OpTimeout,
		WriteTimeout: opts.OpTimeout,
	})
	return &Client{
		rdb:       rdb,
		opTimeout: opts.OpTimeout,
		log:       log.With("client", "KVStore"),
	}, nil
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func miss(err error) error {
	if errors.Is(err, goredis.Nil) {
		return ErrMiss
	}
	return err
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	v, err := c.rdb.Get(ctx, key).Result()
	return v, miss(err)
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// TTL returns ErrMiss for an absent key and -1 for a key without expiry.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if d == -2 || d == -2*time.Second {
		return 0, ErrMiss
	}
	if d < 0 {
		return -1, nil
	}
	return d, nil
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// GetJSON decodes the value at key into out. A payload that fails to decode is
// reported as a wrapped error, never as a partial value.
func (c *Client) GetJSON(ctx context.Context, key string, out any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("kvstore: decode %s: %w", key, err)
	}
	return nil
}

func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(raw), ttl)
}

func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.SAdd(ctx, key, toAny(members)...).Err()
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.SRem(ctx, key, toAny(members)...).Err()
}

func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.SIsMember(ctx, key, member).Result()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.SMembers(ctx, key).Result()
}

func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.SCard(ctx, key).Result()
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	v, err := c.rdb.HGet(ctx, key, field).Result()
	return v, miss(err)
}

func (c *Client) HSet(ctx context.Context, key, field, value string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.HSet(ctx, key, field, value).Err()
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.HIncrBy(ctx, key, field, incr).Result()
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.HDel(ctx, key, fields...).Err()
}

var incrThresholdScript = goredis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
if n >= tonumber(ARGV[2]) then
	redis.call('HDEL', KEYS[1], ARGV[1])
	return {n, 1}
end
return {n, 0}
`)

func (c *Client) HIncrByThreshold(ctx context.Context, key, field string, threshold int64, ttl time.Duration) (int64, bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	res, err := incrThresholdScript.Run(ctx, c.rdb, []string{key}, field, threshold, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("kvstore: unexpected script reply %v", res)
	}
	return res[0], res[1] == 1, nil
}

func (c *Client) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.LPush(ctx, key, toAny(values)...).Err()
}

func (c *Client) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.RPush(ctx, key, toAny(values)...).Err()
}

func (c *Client) RPop(ctx context.Context, key string) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	v, err := c.rdb.RPop(ctx, key).Result()
	return v, miss(err)
}

// BRPop blocks up to timeout across keys, checked in order. It returns the
// key the element came from and the element, or ErrMiss on timeout.
func (c *Client) BRPop(ctx context.Context, timeout time.Duration, keys ...string) (string, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout+c.opTimeout)
	defer cancel()
	res, err := c.rdb.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		return "", "", miss(err)
	}
	if len(res) != 2 {
		return "", "", fmt.Errorf("kvstore: unexpected BRPOP reply len=%d", len(res))
	}
	return res[0], res[1], nil
}

func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.LLen(ctx, key).Result()
}

func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.Publish(ctx, channel, payload).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func toAny(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
