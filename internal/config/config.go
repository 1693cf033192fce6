// Package config holds configuration of the chash tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gobwas/chash"
	"github.com/gobwas/chash/internal/hashers"
)

// Config is a ring definition with optional etcd and logging settings.
type Config struct {
	Targets []Target `yaml:"targets"`
	Scheme  string   `yaml:"scheme"`
	Hash    string   `yaml:"hash"`
	Etcd    Etcd     `yaml:"etcd"`
	Log     Log      `yaml:"log"`
}

type Target struct {
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

type Etcd struct {
	Endpoints   []string      `yaml:"endpoints"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns configuration with all optional values filled.
func Default() Config {
	return Config{
		Scheme: chash.SchemeWeighted.String(),
		Hash:   hashers.Default,
		Etcd: Etcd{
			Endpoints:   []string{"127.0.0.1:2379"},
			DialTimeout: 5 * time.Second,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads YAML configuration from the named file. Values missing in the
// file are taken from Default().
func Load(path string) (Config, error) {
	c := Default()
	p, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(p, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for i := range c.Targets {
		if c.Targets[i].Weight == 0 {
			c.Targets[i].Weight = 1
		}
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// ParseTargets parses a list of targets in form "name[=weight],...".
// Weight defaults to 1 when omitted.
func ParseTargets(s string) ([]Target, error) {
	if strings.TrimSpace(s) == "" {
		return []Target{}, nil
	}
	parts := strings.Split(s, ",")
	targets := make([]Target, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, weight, hasWeight := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid target format: %q (expected name=weight)", part)
		}
		w := 1
		if hasWeight {
			var err error
			w, err = strconv.Atoi(strings.TrimSpace(weight))
			if err != nil {
				return nil, fmt.Errorf("invalid weight of target %q: %w", name, err)
			}
		}
		targets = append(targets, Target{
			Name:   name,
			Weight: w,
		})
	}
	return targets, nil
}

// Validate checks that configuration describes a usable ring.
func (c Config) Validate() error {
	if len(c.Targets) == 0 {
		return errors.New("no targets")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.Name == "" {
			return errors.New("target with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target %q", t.Name)
		}
		seen[t.Name] = true
	}
	if _, err := ParseScheme(c.Scheme); err != nil {
		return err
	}
	if _, err := hashers.Lookup(c.Hash); err != nil {
		return err
	}
	return nil
}

// ParseScheme returns scheme with the given name. Empty name means
// chash.SchemeWeighted.
func ParseScheme(s string) (chash.Scheme, error) {
	switch s {
	case "", chash.SchemeWeighted.String():
		return chash.SchemeWeighted, nil
	case chash.SchemeLegacy.String():
		return chash.SchemeLegacy, nil
	default:
		return 0, fmt.Errorf("unknown scheme %q", s)
	}
}

// Ring builds a ring from the configuration.
func (c Config) Ring(opts ...chash.Option) (*chash.Ring, error) {
	scheme, err := ParseScheme(c.Scheme)
	if err != nil {
		return nil, err
	}
	h, err := hashers.Lookup(c.Hash)
	if err != nil {
		return nil, err
	}
	r := chash.New(append([]chash.Option{
		chash.WithScheme(scheme),
		chash.WithHasher(h),
	}, opts...)...)
	for _, t := range c.Targets {
		if err := r.AddTarget(t.Name, t.Weight); err != nil {
			return nil, err
		}
	}
	return r, nil
}
