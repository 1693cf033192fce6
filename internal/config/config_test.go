package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobwas/chash"
)

func TestParseTargets(t *testing.T) {
	for _, test := range []struct {
		name    string
		in      string
		exp     []Target
		wantErr bool
	}{
		{
			name: "empty",
			in:   "",
			exp:  []Target{},
		},
		{
			name: "weights",
			in:   "a=1,b=3",
			exp:  []Target{{"a", 1}, {"b", 3}},
		},
		{
			name: "default weight",
			in:   "a, b=2 ,c",
			exp:  []Target{{"a", 1}, {"b", 2}, {"c", 1}},
		},
		{
			name: "trailing comma",
			in:   "a=1,,",
			exp:  []Target{{"a", 1}},
		},
		{
			name:    "bad weight",
			in:      "a=x",
			wantErr: true,
		},
		{
			name:    "empty name",
			in:      "=3",
			wantErr: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			act, err := ParseTargets(test.in)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.exp, act)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.yaml")
	err := os.WriteFile(path, []byte(`
targets:
  - name: server01
    weight: 3
  - name: server02
scheme: legacy
hash: xxhash
etcd:
  endpoints: ["etcd-0:2379", "etcd-1:2379"]
  prefix: /rings/
  dial_timeout: 2s
`), 0o644)
	require.NoError(t, err)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Target{{"server01", 3}, {"server02", 1}}, c.Targets)
	assert.Equal(t, "legacy", c.Scheme)
	assert.Equal(t, "xxhash", c.Hash)
	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, c.Etcd.Endpoints)
	assert.Equal(t, "/rings/", c.Etcd.Prefix)
	assert.Equal(t, 2*time.Second, c.Etcd.DialTimeout)
	assert.Equal(t, "info", c.Log.Level)

	r, err := c.Ring()
	require.NoError(t, err)
	n, err := r.Freeze()
	require.NoError(t, err)
	assert.Equal(t, 4*chash.LegacyReplicas, n)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	for _, test := range []struct {
		name string
		body string
	}{
		{"no targets", "scheme: weighted\n"},
		{"duplicate", "targets: [{name: a}, {name: a}]\n"},
		{"empty name", "targets: [{weight: 2}]\n"},
		{"scheme", "targets: [{name: a}]\nscheme: ketama\n"},
		{"hash", "targets: [{name: a}]\nhash: md5\n"},
		{"syntax", "targets: [\n"},
	} {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(dir, "ring.yaml")
			require.NoError(t, os.WriteFile(path, []byte(test.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigRing(t *testing.T) {
	c := Default()
	c.Targets = []Target{{"a", 20}, {"b", 0}}
	r, err := c.Ring()
	require.NoError(t, err)
	ts, err := r.Targets()
	require.NoError(t, err)
	assert.Equal(t, []chash.Target{{Name: "a", Weight: 10}, {Name: "b", Weight: 1}}, ts)
}
