package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS is a cache shared between registry instances, backed by a JetStream
// key-value bucket. Keys are stored as "<namespace>.<sha256 of key>", so
// prefix invalidation works at namespace granularity.
type NATS struct {
	conn   *nats.Conn
	bucket jetstream.KeyValue
	now    func() time.Time
}

var _ Cache = (*NATS)(nil)

type natsEnvelope struct {
	ExpiresAt time.Time `json:"expires_at"`
	Value     []byte    `json:"value"`
}

// NewNATS connects to url and opens or creates bucket. The bucket TTL is
// maxTTL; entries also carry their own, possibly shorter, expiry.
func NewNATS(ctx context.Context, url, bucket string, maxTTL time.Duration) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("mcp-registry-cache"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "mcp registry query cache",
			TTL:         maxTTL,
			History:     1,
		})
		// lost a creation race with another instance
		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = js.KeyValue(ctx, bucket)
		}
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open KV bucket %s: %w", bucket, err)
	}

	return &NATS{conn: conn, bucket: kv, now: time.Now}, nil
}

// natsKey maps an arbitrary cache key onto the KV key alphabet.
func natsKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return subjectToken(Namespace(key)) + "." + hex.EncodeToString(sum[:])
}

// subjectToken keeps only characters valid in a KV key token.
func subjectToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func (n *NATS) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := n.bucket.Get(ctx, natsKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get: %w", err)
	}

	var env natsEnvelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		// unreadable entries are treated as misses and overwritten on the next Set
		return nil, false, nil
	}
	if !n.now().Before(env.ExpiresAt) {
		return nil, false, nil
	}
	return env.Value, true, nil
}

func (n *NATS) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	raw, err := json.Marshal(natsEnvelope{ExpiresAt: n.now().Add(ttl), Value: value})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if _, err := n.bucket.Put(ctx, natsKey(key), raw); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

func (n *NATS) Delete(ctx context.Context, key string) error {
	err := n.bucket.Delete(ctx, natsKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

func (n *NATS) InvalidatePrefix(ctx context.Context, prefix string) error {
	nsPrefix := subjectToken(Namespace(prefix)) + "."
	keys, err := n.bucket.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("kv keys: %w", err)
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, nsPrefix) {
			continue
		}
		if err := n.bucket.Delete(ctx, k); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("kv delete %s: %w", k, err)
		}
	}
	return nil
}

func (n *NATS) Close() error {
	return n.conn.Drain()
}
