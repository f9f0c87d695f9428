package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Claim sets key only if absent. true berarti caller yang pertama dan boleh lanjut.
func Claim(ctx context.Context, rdb redis.Cmdable, key, value string, ttl time.Duration) (bool, error) {
	ok, err := rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Release dipakai kalau proses setelah Claim gagal, supaya retry bisa klaim ulang.
func Release(ctx context.Context, rdb redis.Cmdable, key string) error {
	return rdb.Del(ctx, key).Err()
}
