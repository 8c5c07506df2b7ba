// Package redisindex backs ftsindex.Index with Redis hashes: one hash per
// resource (fts:<resourceID>, field <propertyID>), staged per-transaction
// in a scratch hash so a rollback never touches the committed index.
package redisindex

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"triplestore.dev/updateengine/pkg/ftsindex"
)

const (
	committedPrefix = "fts:"
	stagePrefix     = "fts:stage:"
)

// Index implements ftsindex.Index over a Redis client.
type Index struct {
	client *redis.Client
}

var _ ftsindex.Index = (*Index)(nil)

// New connects to url (a redis:// or rediss:// connection string) and
// verifies reachability with a ping.
func New(ctx context.Context, url string) (*Index, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisindex: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisindex: ping: %w", err)
	}
	return &Index{client: client}, nil
}

func stageKey(txnID string) string { return stagePrefix + txnID }

func fieldKey(resourceID, propertyID string) string { return resourceID + "|" + propertyID }

func (i *Index) Init(ctx context.Context, txnID string) error {
	return i.client.Del(ctx, stageKey(txnID)).Err()
}

func (i *Index) UpdateText(ctx context.Context, txnID, resourceID, propertyID, text string) error {
	return i.client.HSet(ctx, stageKey(txnID), fieldKey(resourceID, propertyID), text).Err()
}

func (i *Index) Commit(ctx context.Context, txnID string) error {
	staged, err := i.client.HGetAll(ctx, stageKey(txnID)).Result()
	if err != nil {
		return fmt.Errorf("redisindex: read staged: %w", err)
	}

	pipe := i.client.TxPipeline()
	for field, text := range staged {
		resourceID, propertyID, err := splitFieldKey(field)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, committedPrefix+resourceID, propertyID, text)
	}
	pipe.Del(ctx, stageKey(txnID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisindex: commit pipeline: %w", err)
	}
	return nil
}

func (i *Index) Rollback(ctx context.Context, txnID string) error {
	return i.client.Del(ctx, stageKey(txnID)).Err()
}

// Close releases the underlying Redis client.
func (i *Index) Close() error { return i.client.Close() }

func splitFieldKey(field string) (resourceID, propertyID string, err error) {
	for idx := 0; idx < len(field); idx++ {
		if field[idx] == '|' {
			return field[:idx], field[idx+1:], nil
		}
	}
	return "", "", fmt.Errorf("redisindex: malformed staged field %q", field)
}
