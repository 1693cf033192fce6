// Command chash builds, inspects and queries consistent hashing rings.
//
// Usage:
//
//	chash build   [flags] -o ring.bin
//	chash inspect -i ring.bin
//	chash lookup  [flags] [-n count] key...
//	chash balance [flags] [-n count] key...
//	chash publish [flags] -name main
//	chash fetch   [flags] -name main -o ring.bin
//
// A ring is taken from a file given by -i, from a YAML config given by
// -config or from a targets list given by -targets ("name=weight,...").
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gobwas/chash"
	"github.com/gobwas/chash/etcdstore"
	"github.com/gobwas/chash/internal/config"
	"github.com/gobwas/chash/internal/hashers"
	"github.com/gobwas/chash/ringzap"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "chash: %v\n", err)
		}
		os.Exit(1)
	}
}

var commands = map[string]func(*env, []string) error{
	"build":   build,
	"inspect": inspect,
	"lookup":  lookup,
	"balance": balance,
	"publish": publish,
	"fetch":   fetch,
}

// env is a state shared by all commands.
type env struct {
	stdout io.Writer
	stderr io.Writer
	log    *zap.Logger

	// file is the configuration read from conf.
	file *config.Config

	// Ring source flags.
	input   string
	conf    string
	targets string
	scheme  string
	hash    string
	verbose bool

	// Etcd flags.
	endpoints string
	prefix    string
	timeout   time.Duration
	name      string
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return flag.ErrHelp
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
	e := &env{
		stdout: stdout,
		stderr: stderr,
	}
	return cmd(e, args[1:])
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "usage: chash <command> [flags]\n\ncommands: %s\n",
		strings.Join(names, ", "),
	)
}

func (e *env) flags(name string, ring, etcd bool) *flag.FlagSet {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(e.stderr)
	flags.BoolVar(&e.verbose,
		"v", false,
		"log debug messages",
	)
	if ring {
		flags.StringVar(&e.input,
			"i", "",
			"read ring from binary file",
		)
		flags.StringVar(&e.conf,
			"config", "",
			"read ring from YAML config file",
		)
		flags.StringVar(&e.targets,
			"targets", "",
			"comma-separated list of targets in form name=weight",
		)
		flags.StringVar(&e.scheme,
			"scheme", "",
			"virtual nodes scheme: weighted or legacy",
		)
		flags.StringVar(&e.hash,
			"hash", "",
			"hash function; one of "+strings.Join(hashers.Names(), ", "),
		)
	}
	if etcd {
		flags.StringVar(&e.endpoints,
			"etcd", "",
			"comma-separated list of etcd endpoints",
		)
		flags.StringVar(&e.prefix,
			"prefix", "",
			"etcd key prefix",
		)
		flags.DurationVar(&e.timeout,
			"timeout", 5*time.Second,
			"etcd dial and request timeout",
		)
		flags.StringVar(&e.name,
			"name", "",
			"name of the ring in etcd",
		)
	}
	return flags
}

func (e *env) parse(flags *flag.FlagSet, args []string) error {
	if err := flags.Parse(args); err != nil {
		return err
	}
	level := zapcore.InfoLevel
	if e.conf != "" {
		c, err := config.Load(e.conf)
		if err != nil {
			return err
		}
		if err := level.Set(c.Log.Level); err != nil {
			return fmt.Errorf("config: bad log level: %w", err)
		}
		e.file = &c
	}
	if e.verbose {
		level = zapcore.DebugLevel
	}
	e.log = newLogger(e.stderr, level)
	return nil
}

func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(w),
		level,
	))
}

// config returns configuration assembled from the flags.
func (e *env) config() (config.Config, error) {
	c := config.Default()
	if e.file != nil {
		c = *e.file
	}
	if e.targets != "" {
		ts, err := config.ParseTargets(e.targets)
		if err != nil {
			return c, err
		}
		c.Targets = ts
	}
	if e.scheme != "" {
		c.Scheme = e.scheme
	}
	if e.hash != "" {
		c.Hash = e.hash
	}
	if e.endpoints != "" {
		c.Etcd.Endpoints = strings.Split(e.endpoints, ",")
	}
	if e.prefix != "" {
		c.Etcd.Prefix = e.prefix
	}
	if e.timeout != 0 {
		c.Etcd.DialTimeout = e.timeout
	}
	return c, nil
}

// ring returns a ring loaded from file or built from the configuration.
func (e *env) ring() (*chash.Ring, error) {
	c, err := e.config()
	if err != nil {
		return nil, err
	}
	trace := chash.WithTrace(ringzap.Trace(e.log))
	if e.input == "" {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c.Ring(trace)
	}
	h, err := hashers.Lookup(c.Hash)
	if err != nil {
		return nil, err
	}
	r := chash.New(chash.WithHasher(h), trace)
	if err := r.LoadFile(e.input); err != nil {
		return nil, err
	}
	return r, nil
}

func build(e *env, args []string) error {
	var output string
	flags := e.flags("build", true, false)
	flags.StringVar(&output,
		"o", "",
		"output file",
	)
	if err := e.parse(flags, args); err != nil {
		return err
	}
	if output == "" {
		return errors.New("build: output file is required")
	}
	r, err := e.ring()
	if err != nil {
		return err
	}
	n, err := r.SaveFile(output)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %d bytes, %d virtual nodes\n", output, n, r.VirtualNodes())
	return nil
}

func inspect(e *env, args []string) error {
	flags := e.flags("inspect", true, false)
	if err := e.parse(flags, args); err != nil {
		return err
	}
	r, err := e.ring()
	if err != nil {
		return err
	}
	n, err := r.Freeze()
	if err != nil {
		return err
	}
	ts, err := r.Targets()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "targets: %d\nvirtual nodes: %d\n", len(ts), n)
	tw := tabwriter.NewWriter(e.stdout, 2, 2, 2, ' ', 0)
	for _, t := range ts {
		fmt.Fprintf(tw, "%s\t%d\n", t.Name, t.Weight)
	}
	return tw.Flush()
}

func lookup(e *env, args []string) error {
	return query(e, "lookup", args, func(r *chash.Ring, key string, n int) (string, error) {
		ret, err := r.Lookup(key, n)
		return strings.Join(ret, " "), err
	})
}

func balance(e *env, args []string) error {
	return query(e, "balance", args, func(r *chash.Ring, key string, n int) (string, error) {
		return r.LookupBalance(key, n)
	})
}

func query(e *env, name string, args []string, fn func(*chash.Ring, string, int) (string, error)) error {
	var n int
	flags := e.flags(name, true, false)
	flags.IntVar(&n,
		"n", 1,
		"number of targets to look for",
	)
	if err := e.parse(flags, args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("%s: no keys given", name)
	}
	r, err := e.ring()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 2, 2, 2, ' ', 0)
	for _, key := range flags.Args() {
		s, err := fn(r, key, n)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\n", key, s)
	}
	return tw.Flush()
}

func publish(e *env, args []string) error {
	flags := e.flags("publish", true, true)
	if err := e.parse(flags, args); err != nil {
		return err
	}
	c, err := e.config()
	if err != nil {
		return err
	}
	r, err := e.ring()
	if err != nil {
		return err
	}
	store, closeStore, err := dial(c.Etcd, e.log)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), c.Etcd.DialTimeout)
	defer cancel()
	n, err := store.Publish(ctx, e.name, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %d bytes\n", e.name, n)
	return nil
}

func fetch(e *env, args []string) error {
	var output string
	flags := e.flags("fetch", false, true)
	flags.StringVar(&output,
		"o", "",
		"output file",
	)
	if err := e.parse(flags, args); err != nil {
		return err
	}
	c, err := e.config()
	if err != nil {
		return err
	}
	store, closeStore, err := dial(c.Etcd, e.log)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), c.Etcd.DialTimeout)
	defer cancel()
	r := chash.New(chash.WithTrace(ringzap.Trace(e.log)))
	if err := store.Fetch(ctx, e.name, r); err != nil {
		return err
	}
	if output == "" {
		n, err := r.TargetCount()
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s: %d targets, %d virtual nodes\n",
			e.name, n, r.VirtualNodes(),
		)
		return nil
	}
	n, err := r.SaveFile(output)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %d bytes\n", output, n)
	return nil
}

// dial is replaced in tests.
var dial = dialEtcd

func dialEtcd(c config.Etcd, log *zap.Logger) (*etcdstore.Store, func(), error) {
	cli, err := etcdstore.Dial(c.Endpoints, c.DialTimeout)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := cli.Close(); err != nil {
			log.Warn("can't close etcd client", zap.Error(err))
		}
	}
	return etcdstore.New(cli, c.Prefix, log), closeStore, nil
}
