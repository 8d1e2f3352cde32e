package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/audio"
)

var errCacheMiss = errors.New("tts: cache miss")

// clipStore is the slice of Redis the cache needs.
type clipStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

type redisStore struct {
	rdb *redis.Client
}

func (s redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return b, err
}

func (s redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s redisStore) Close() error { return s.rdb.Close() }

// CacheConfig holds configuration for the Redis clip cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	VoiceID  string
	ModelID  string
}

// CachedClient wraps a Client and keeps synthesized clips in Redis so
// repeated replies skip the API. Any cache failure falls through to the
// wrapped client.
type CachedClient struct {
	next    Client
	store   clipStore
	ttl     time.Duration
	voiceID string
	modelID string
	logger  *zap.Logger
}

// NewRedisCache connects to Redis and wraps next.
func NewRedisCache(ctx context.Context, cfg CacheConfig, next Client, logger *zap.Logger) (*CachedClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	return newCachedClient(redisStore{rdb: rdb}, cfg, next, logger), nil
}

func newCachedClient(store clipStore, cfg CacheConfig, next Client, logger *zap.Logger) *CachedClient {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedClient{
		next:    next,
		store:   store,
		ttl:     ttl,
		voiceID: cfg.VoiceID,
		modelID: cfg.ModelID,
		logger:  logger,
	}
}

type cachedClip struct {
	Data       []byte `json:"data"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Truncated  bool   `json:"truncated"`
}

// Synthesize returns the cached clip for text or synthesizes and stores it.
// A cache hit reports zero Characters since nothing is billed.
func (c *CachedClient) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	key := c.key(text)

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var cc cachedClip
		if jsonErr := json.Unmarshal(raw, &cc); jsonErr == nil && len(cc.Data) > 0 {
			c.logger.Debug("tts: cache hit", zap.String("key", key))
			return audio.Clip{Data: cc.Data, Encoding: cc.Encoding, SampleRate: cc.SampleRate, Truncated: cc.Truncated}, nil
		}
		c.logger.Warn("tts: discarding unreadable cache entry", zap.String("key", key))
	case !errors.Is(err, errCacheMiss):
		c.logger.Warn("tts: cache lookup failed", zap.Error(err))
	}

	clip, err := c.next.Synthesize(ctx, text)
	if err != nil {
		return clip, err
	}

	raw, err = json.Marshal(cachedClip{
		Data:       clip.Data,
		Encoding:   clip.Encoding,
		SampleRate: clip.SampleRate,
		Truncated:  clip.Truncated,
	})
	if err == nil {
		err = c.store.Set(ctx, key, raw, c.ttl)
	}
	if err != nil {
		c.logger.Warn("tts: cache store failed", zap.Error(err))
	}
	return clip, nil
}

// Close releases the Redis connection.
func (c *CachedClient) Close() error {
	return c.store.Close()
}

func (c *CachedClient) key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.voiceID))
	h.Write([]byte{0})
	h.Write([]byte(c.modelID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "vai0:tts:" + hex.EncodeToString(h.Sum(nil))
}
