package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

// Cache stores encoded vectors by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached serves repeated texts from a Cache and forwards misses to the wrapped embedder.
// Cache failures count as misses; they never fail an embedding call.
type Cached struct {
	next    domain.Embedder
	cache   Cache
	ttl     time.Duration
	metrics *telemetry.Metrics
	logger  *log.Logger
}

func NewCached(next domain.Embedder, cache Cache, ttl time.Duration, metrics *telemetry.Metrics) *Cached {
	return &Cached{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		metrics: metrics,
		logger:  log.New(log.Writer(), "[EMBED] ", log.LstdFlags),
	}
}

func (c *Cached) Name() string    { return c.next.Name() }
func (c *Cached) Dimensions() int { return c.next.Dimensions() }

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		key := c.key(text)
		raw, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Printf("warn: embedding cache get: %v", err)
		}
		if ok {
			if vec, err := decodeVector(raw); err == nil && len(vec) == c.next.Dimensions() {
				out[i] = vec
				c.metrics.EmbedCache(true)
				continue
			}
		}
		c.metrics.EmbedCache(false)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, wrap(err)
	}
	if len(vecs) != len(missTexts) {
		return nil, wrap(fmt.Errorf("backend returned %d vectors for %d texts", len(vecs), len(missTexts)))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := c.cache.Set(ctx, c.key(missTexts[j]), encodeVector(vecs[j]), c.ttl); err != nil {
			c.logger.Printf("warn: embedding cache set: %v", err)
		}
	}
	return out, nil
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.next.Name() + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("encoded vector has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// RedisCache is a Cache on a go-redis client.
type RedisCache struct {
	Client *redis.Client
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttl).Err()
}

// Conn opens a redis client and verifies it with PING.
func Conn(ctx context.Context, host, port, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", host, port, err)
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}
