package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "filelock:"

const scanCount = 100

// Redis keeps blobs in a Redis deployment. With more than one address the
// client talks to a Redis Cluster, which replicates the blobs for us.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis connects to the comma-separated address list.
func NewRedis(cluster string, prefix string) *Redis {
	var addrs []string
	for _, a := range strings.Split(cluster, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{
		client: redis.NewUniversalClient(&redis.UniversalOptions{Addrs: addrs}),
		prefix: prefix,
	}
}

func (r *Redis) ReadAll(ctx context.Context, path string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+path).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", path, err)
	}
	return data, nil
}

func (r *Redis) WriteAll(ctx context.Context, path string, data []byte) error {
	if err := r.client.Set(ctx, r.prefix+path, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", path, err)
	}
	return nil
}

// List scans every master when talking to a cluster, since each one only
// holds its own slots.
func (r *Redis) List(ctx context.Context) ([]string, error) {
	var mu sync.Mutex
	seen := make(map[string]struct{})
	scan := func(ctx context.Context, c redis.Cmdable) error {
		iter := c.Scan(ctx, 0, r.prefix+"*", scanCount).Iterator()
		for iter.Next(ctx) {
			mu.Lock()
			seen[strings.TrimPrefix(iter.Val(), r.prefix)] = struct{}{}
			mu.Unlock()
		}
		return iter.Err()
	}

	var err error
	if cluster, ok := r.client.(*redis.ClusterClient); ok {
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
			return scan(ctx, c)
		})
	} else {
		err = scan(ctx, r.client)
	}
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
