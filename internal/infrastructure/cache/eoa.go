package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"transferindex/internal/infrastructure/ethrpc"

	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/redis/go-redis/v9"
)

const (
	eoaKeyPrefix  = "transferindex:eoa:"
	defaultEOATTL = time.Hour

	defaultMaxEntries = 100_000

	valueEOA      = "1"
	valueContract = "0"
)

type CodeReader interface {
	GetCode(ctx context.Context, address string) (string, error)
}

type EOAConfig struct {
	// RedisAddr enables a shared cache; empty keeps the cache in process.
	RedisAddr string
	// TTL bounds how long a classification is trusted. Zero means the
	// default of one hour; a negative TTL disables caching entirely.
	TTL time.Duration
	// MaxEntries caps the in-process cache; the least recently used
	// address is evicted first. Zero means 100000.
	MaxEntries int
}

// EOAClassifier answers whether an address is an externally owned account,
// memoizing eth_getCode results per address.
type EOAClassifier struct {
	codes CodeReader
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	local lru.BasicLRU[string, localEntry]
}

type localEntry struct {
	eoa     bool
	expires time.Time
}

func NewEOAClassifier(codes CodeReader, cfg EOAConfig) (*EOAClassifier, error) {
	if codes == nil {
		return nil, errors.New("code reader is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultEOATTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	classifier := &EOAClassifier{
		codes: codes,
		ttl:   cfg.TTL,
		now:   time.Now,
		local: lru.NewBasicLRU[string, localEntry](cfg.MaxEntries),
	}
	if cfg.TTL < 0 || strings.TrimSpace(cfg.RedisAddr) == "" {
		return classifier, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	classifier.redis = client
	return classifier, nil
}

// IsEOA reports whether address has no deployed code. RPC errors are
// returned uncached; cache failures fall back to the RPC.
func (c *EOAClassifier) IsEOA(ctx context.Context, address string) (bool, error) {
	key := strings.ToLower(address)
	if c.ttl < 0 {
		return c.lookup(ctx, address)
	}
	if eoa, ok := c.fromLocal(key); ok {
		return eoa, nil
	}
	if eoa, ok := c.fromRedis(ctx, key); ok {
		c.storeLocal(key, eoa)
		return eoa, nil
	}

	eoa, err := c.lookup(ctx, address)
	if err != nil {
		return false, err
	}
	c.storeLocal(key, eoa)
	c.storeRedis(ctx, key, eoa)
	return eoa, nil
}

func (c *EOAClassifier) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func (c *EOAClassifier) lookup(ctx context.Context, address string) (bool, error) {
	code, err := c.codes.GetCode(ctx, address)
	if err != nil {
		return false, err
	}
	return code == ethrpc.EmptyCode, nil
}

func (c *EOAClassifier) fromLocal(key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local.Get(key)
	if !ok {
		return false, false
	}
	if !c.now().Before(entry.expires) {
		c.local.Remove(key)
		return false, false
	}
	return entry.eoa, true
}

func (c *EOAClassifier) storeLocal(key string, eoa bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local.Add(key, localEntry{eoa: eoa, expires: c.now().Add(c.ttl)})
}

func (c *EOAClassifier) fromRedis(ctx context.Context, key string) (bool, bool) {
	if c.redis == nil {
		return false, false
	}
	value, err := c.redis.Get(ctx, eoaKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("eoa cache read failed", "address", key, "err", err)
		}
		return false, false
	}
	switch value {
	case valueEOA:
		return true, true
	case valueContract:
		return false, true
	default:
		return false, false
	}
}

func (c *EOAClassifier) storeRedis(ctx context.Context, key string, eoa bool) {
	if c.redis == nil {
		return
	}
	value := valueContract
	if eoa {
		value = valueEOA
	}
	if err := c.redis.Set(ctx, eoaKeyPrefix+key, value, c.ttl).Err(); err != nil {
		slog.Debug("eoa cache write failed", "address", key, "err", err)
	}
}
