package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/primev/preconf-deployer/internal/config"
)

const lockKeyPrefix = "preconf-deployer:lock:"

var (
	// ErrLockHeld is returned when another run holds the deploy lock for the chain.
	ErrLockHeld = errors.New("deploy lock is held by another run")
	// ErrLockLost is returned on release when the lock expired or changed owner.
	ErrLockLost = errors.New("deploy lock expired or was taken over")
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the key's expiry only if it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis wraps a Redis client.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a new Redis client.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// Client returns the underlying Redis client.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// LockKey returns the deploy lock key for a chain.
func LockKey(chainID int64) string {
	return lockKeyPrefix + strconv.FormatInt(chainID, 10)
}

// Lock is a held deploy lock.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Key returns the locked key.
func (l *Lock) Key() string {
	return l.key
}

// TTL returns the expiry applied on acquire and on every refresh.
func (l *Lock) TTL() time.Duration {
	return l.ttl
}

// AcquireLock takes the per-chain deploy lock for ttl. token identifies the owner
// and is required to release it.
func (r *Redis) AcquireLock(ctx context.Context, chainID int64, token string, ttl time.Duration) (*Lock, error) {
	key := LockKey(chainID)

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		holder, err := r.client.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		}
		return nil, fmt.Errorf("%w: %s (holder %s)", ErrLockHeld, key, holder)
	}

	return &Lock{client: r.client, key: key, token: token, ttl: ttl}, nil
}

// Release drops the lock if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	return nil
}

// Refresh resets the lock expiry to its TTL. It returns ErrLockLost when the key
// expired or now belongs to another run.
func (l *Lock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	return nil
}
