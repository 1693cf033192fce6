// Package etcdstore publishes serialized rings to etcd and fetches them back.
//
// Rings are stored under Prefix+name as raw binary produced by
// chash.Ring.MarshalBinary(), so any process with access to the cluster can
// load exactly the same continuum without recalculating it.
package etcdstore

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/gobwas/chash"
)

// DefaultPrefix is used when Store.Prefix is empty.
const DefaultPrefix = "/chash/rings/"

// Store reads and writes rings in etcd.
type Store struct {
	KV      clientv3.KV
	Watcher clientv3.Watcher

	// Prefix is prepended to the ring names to get etcd keys.
	Prefix string

	// Logger is optional.
	Logger *zap.Logger
}

// New returns Store using cli for both reads and watches.
func New(cli *clientv3.Client, prefix string, log *zap.Logger) *Store {
	return &Store{
		KV:      cli,
		Watcher: cli,
		Prefix:  prefix,
		Logger:  log,
	}
}

// Dial connects to the etcd cluster.
func Dial(endpoints []string, timeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("etcdstore: dial %v: %w", endpoints, err)
	}
	return cli, nil
}

// Publish stores binary representation of the ring under the given name.
// It returns the number of bytes stored.
func (s *Store) Publish(ctx context.Context, name string, ring encoding.BinaryMarshaler) (int, error) {
	key, err := s.key(name)
	if err != nil {
		return 0, err
	}
	p, err := ring.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("etcdstore: publish %q: %w", name, err)
	}
	resp, err := s.KV.Put(ctx, key, string(p))
	if err != nil {
		return 0, fmt.Errorf("etcdstore: put %q: %w", key, err)
	}
	s.logger().Info("ring published",
		zap.String("key", key),
		zap.Int("size", len(p)),
		zap.Int64("revision", resp.Header.GetRevision()),
	)
	return len(p), nil
}

// Fetch decodes the ring stored under the given name into ring.
// It returns an error wrapping chash.ErrNotFound if there is no such ring.
func (s *Store) Fetch(ctx context.Context, name string, ring encoding.BinaryUnmarshaler) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	resp, err := s.KV.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("etcdstore: get %q: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return fmt.Errorf("etcdstore: ring %q: %w", name, chash.ErrNotFound)
	}
	kv := resp.Kvs[0]
	if err := ring.UnmarshalBinary(kv.Value); err != nil {
		return fmt.Errorf("etcdstore: fetch %q: %w", name, err)
	}
	s.logger().Debug("ring fetched",
		zap.String("key", key),
		zap.Int("size", len(kv.Value)),
		zap.Int64("revision", kv.ModRevision),
	)
	return nil
}

// List returns names of all rings stored under the prefix.
func (s *Store) List(ctx context.Context) ([]string, error) {
	prefix := s.prefix()
	resp, err := s.KV.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("etcdstore: list %q: %w", prefix, err)
	}
	names := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		names = append(names, strings.TrimPrefix(string(kv.Key), prefix))
	}
	return names, nil
}

// Delete removes the ring stored under the given name.
// It returns an error wrapping chash.ErrNotFound if there is no such ring.
func (s *Store) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	resp, err := s.KV.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("etcdstore: delete %q: %w", key, err)
	}
	if resp.Deleted == 0 {
		return fmt.Errorf("etcdstore: ring %q: %w", name, chash.ErrNotFound)
	}
	return nil
}

// Watch calls fn with binary representation of the ring each time it is
// published under the given name. Deletions are ignored. It blocks until ctx
// is done, the watch fails or fn returns an error.
func (s *Store) Watch(ctx context.Context, name string, fn func([]byte) error) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for resp := range s.Watcher.Watch(ctx, key) {
		if err := resp.Err(); err != nil {
			return fmt.Errorf("etcdstore: watch %q: %w", key, err)
		}
		for _, ev := range resp.Events {
			if ev.Type != mvccpb.PUT {
				s.logger().Debug("ignoring ring event",
					zap.String("key", key),
					zap.Stringer("type", ev.Type),
				)
				continue
			}
			if err := fn(ev.Kv.Value); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

func (s *Store) key(name string) (string, error) {
	if name == "" {
		return "", errors.New("etcdstore: empty ring name")
	}
	return s.prefix() + name, nil
}

func (s *Store) prefix() string {
	if s.Prefix == "" {
		return DefaultPrefix
	}
	return s.Prefix
}

func (s *Store) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
