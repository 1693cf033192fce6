package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/gobwas/chash"
	"github.com/gobwas/chash/etcdstore"
	"github.com/gobwas/chash/internal/config"
)

const servers = "server01,server02,server03,server04"

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	return stdout.String()
}

func fields(s string) [][]string {
	var ret [][]string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		ret = append(ret, strings.Fields(line))
	}
	return ret
}

func TestLookup(t *testing.T) {
	out := runCmd(t, "lookup", "-targets", servers, "-n", "2", "user:42")
	assert.Equal(t, [][]string{
		{"user:42", "server03", "server04"},
	}, fields(out))

	out = runCmd(t, "lookup", "-targets", servers, "-n", "4", "user:43", "user:42")
	f := fields(out)
	require.Len(t, f, 2)
	assert.Equal(t, []string{"user:43", "server02", "server01", "server04", "server03"}, f[0])
	assert.Equal(t, []string{"user:42", "server03", "server04"}, f[1][:3])

	out = runCmd(t, "lookup", "-targets", servers, "-scheme", "legacy", "-n", "2", "user:42")
	assert.Equal(t, [][]string{
		{"user:42", "server02", "server01"},
	}, fields(out))
}

func TestBalance(t *testing.T) {
	out := runCmd(t, "balance", "-targets", servers, "-n", "2", "user:42")
	f := fields(out)
	require.Len(t, f, 1)
	require.Len(t, f[0], 2)
	assert.Contains(t, []string{"server03", "server04"}, f[0][1])
}

func TestBuildInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ring.bin")
	conf := filepath.Join(dir, "ring.yaml")
	require.NoError(t, os.WriteFile(conf, []byte(`
targets:
  - {name: server01, weight: 3}
  - {name: server02}
log:
  level: warn
`), 0o644))

	out := runCmd(t, "build", "-config", conf, "-o", path)
	assert.Equal(t, path+": 3106 bytes, 512 virtual nodes\n", out)

	out = runCmd(t, "inspect", "-i", path)
	assert.Equal(t, [][]string{
		{"targets:", "2"},
		{"virtual", "nodes:", "512"},
		{"server01", "3"},
		{"server02", "1"},
	}, fields(out))

	// Lookups on the loaded ring give the same results as on the built one.
	a := runCmd(t, "lookup", "-i", path, "-n", "2", "a", "b", "c")
	b := runCmd(t, "lookup", "-config", conf, "-n", "2", "a", "b", "c")
	assert.Equal(t, b, a)
}

func TestErrors(t *testing.T) {
	dir := t.TempDir()
	for _, test := range []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"foo"}},
		{"no output", []string{"build", "-targets", "a"}},
		{"no targets", []string{"build", "-o", filepath.Join(dir, "x")}},
		{"no keys", []string{"lookup", "-targets", "a"}},
		{"bad weight", []string{"lookup", "-targets", "a=x", "k"}},
		{"bad hash", []string{"lookup", "-targets", "a", "-hash", "md5", "k"}},
		{"missing file", []string{"inspect", "-i", filepath.Join(dir, "missing")}},
		{"bad flag", []string{"inspect", "-foo"}},
	} {
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Error(t, run(test.args, &out, &out))
		})
	}
}

type memKV struct {
	clientv3.KV
	data map[string][]byte
}

func (m *memKV) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	m.data[key] = []byte(val)
	return &clientv3.PutResponse{}, nil
}

func (m *memKV) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	v, has := m.data[key]
	if !has {
		return &clientv3.GetResponse{}, nil
	}
	return &clientv3.GetResponse{
		Kvs: []*mvccpb.KeyValue{{Key: []byte(key), Value: v}},
	}, nil
}

func TestPublishFetch(t *testing.T) {
	kv := &memKV{data: make(map[string][]byte)}
	var dialed []config.Etcd
	prev := dial
	dial = func(c config.Etcd, log *zap.Logger) (*etcdstore.Store, func(), error) {
		dialed = append(dialed, c)
		return &etcdstore.Store{
			KV:     kv,
			Prefix: c.Prefix,
			Logger: log,
		}, func() {}, nil
	}
	defer func() { dial = prev }()

	out := runCmd(t, "publish",
		"-targets", servers,
		"-etcd", "etcd-0:2379,etcd-1:2379",
		"-prefix", "/rings/",
		"-name", "main",
	)
	assert.Equal(t, "main: 3126 bytes\n", out)
	require.Contains(t, kv.data, "/rings/main")

	path := filepath.Join(t.TempDir(), "ring.bin")
	out = runCmd(t, "fetch", "-prefix", "/rings/", "-name", "main", "-o", path)
	assert.Equal(t, path+": 3126 bytes\n", out)

	p, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, kv.data["/rings/main"], p)

	var r chash.Ring
	require.NoError(t, r.UnmarshalBinary(p))
	ret, err := r.Lookup("user:42", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"server03", "server04"}, ret)

	out = runCmd(t, "fetch", "-prefix", "/rings/", "-name", "main")
	assert.Equal(t, "main: 4 targets, 512 virtual nodes\n", out)

	require.Len(t, dialed, 3)
	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, dialed[0].Endpoints)

	var buf bytes.Buffer
	err = run([]string{"fetch", "-name", "missing"}, &buf, &buf)
	assert.ErrorIs(t, err, chash.ErrNotFound)
}
