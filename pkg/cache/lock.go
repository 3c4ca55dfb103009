package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when the lock is already taken by another holder.
var ErrLockHeld = errors.New("lock already held")

const (
	lockPrefix = "lock:wallet:"

	// releaseScript deletes the key only when the stored token matches, so
	// a holder whose TTL already expired cannot free a successor's lock.
	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

// WalletLock is a held per-wallet mutual exclusion token. Transaction
// producers take it around the read-modify-write of the wallet's running
// balance.
type WalletLock struct {
	key   string
	value string
}

// AcquireWalletLock takes the per-wallet lock or returns ErrLockHeld.
func (r *RedisClient) AcquireWalletLock(ctx context.Context, walletID string, ttl time.Duration) (*WalletLock, error) {
	key := lockPrefix + walletID
	value := uuid.New().String()

	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire wallet lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return &WalletLock{key: key, value: value}, nil
}

// ReleaseWalletLock frees the lock if still owned by this holder.
func (r *RedisClient) ReleaseWalletLock(ctx context.Context, lock *WalletLock) error {
	result, err := r.client.Eval(ctx, releaseScript, []string{lock.key}, lock.value).Result()
	if err != nil {
		return fmt.Errorf("failed to release wallet lock: %w", err)
	}
	if n, ok := result.(int64); ok && n == 0 {
		return fmt.Errorf("wallet lock expired before release: %s", lock.key)
	}
	return nil
}
