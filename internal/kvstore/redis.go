package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps blobs as plain redis strings under a namespace
type RedisStore struct {
	cli       *redis.Client
	namespace string
}

// ConnectRedis connects to the Redis server and pings it to ensure the
// connection is working.
func ConnectRedis(ctx context.Context, addr, namespace string) (*RedisStore, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{cli: cli, namespace: namespace}, nil
}

func (r *RedisStore) key(k string) string {
	if r.namespace == "" {
		return k
	}
	return r.namespace + ":" + k
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.cli.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := r.cli.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.cli.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	strip := len(r.key(""))

	iter := r.cli.Scan(ctx, 0, r.scanPattern(prefix), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[strip:])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

// globEscaper quotes the characters SCAN MATCH treats as wildcards
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// scanPattern matches every key under prefix and nothing else
func (r *RedisStore) scanPattern(prefix string) string {
	return globEscaper.Replace(r.key(prefix)) + "*"
}

func (r *RedisStore) Close() error {
	return r.cli.Close()
}
