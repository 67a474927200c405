package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "studyforge:tokens:"

type Options struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
	TTL      time.Duration
	Prefix   string
}

type commands interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// TokenCountCache memoises token counts keyed by content hash.
type TokenCountCache struct {
	rdb    commands
	closer func() error
	ttl    time.Duration
	prefix string
}

// New connects and pings once. Callers treat an error as "run without cache".
func New(ctx context.Context, options Options) (*TokenCountCache, error) {
	if options.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	var tlsConf *tls.Config
	if options.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:      options.Addr,
		Password:  options.Password,
		DB:        options.DB,
		TLSConfig: tlsConf,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	c := newCache(client, options)
	c.closer = client.Close
	return c, nil
}

func newCache(rdb commands, options Options) *TokenCountCache {
	ttl := options.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	prefix := options.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &TokenCountCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *TokenCountCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *TokenCountCache) GetTokenCount(ctx context.Context, key string) (int, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get token count: %w", err)
	}
	tokens, err := strconv.Atoi(raw)
	if err != nil || tokens < 0 {
		// A corrupt entry is a miss; the next Set overwrites it.
		return 0, false, nil
	}
	return tokens, true, nil
}

func (c *TokenCountCache) SetTokenCount(ctx context.Context, key string, tokens int) error {
	if err := c.rdb.Set(ctx, c.prefix+key, strconv.Itoa(tokens), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set token count: %w", err)
	}
	return nil
}
