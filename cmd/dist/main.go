package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gobwas/avl"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gobwas/chash"
	"github.com/gobwas/chash/internal/config"
	"github.com/gobwas/chash/internal/hashers"
	"github.com/gobwas/chash/ringprom"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "dist: %v\n", err)
		os.Exit(1)
	}
}

type params struct {
	parallelism int
	objects     int
	lo          int // Min number of servers.
	hi          int // Max number of servers.
	servers     string
	hashes      string
	scheme      string
	weight      int
	seed        uint64
	metrics     string
	csv         bool
	verbose     bool
	silent      bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var p params
	flags := flag.NewFlagSet("dist", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.IntVar(&p.parallelism,
		"parallelism", runtime.NumCPU(),
		"number of concurrent processors",
	)
	flags.IntVar(&p.objects,
		"objects", 1e5,
		"number of objects to spread on ring",
	)
	flags.IntVar(&p.lo,
		"lo", 0,
		"number of servers to start from",
	)
	flags.IntVar(&p.hi,
		"hi", 0,
		"number of servers to end at",
	)
	flags.StringVar(&p.servers,
		"servers", "10",
		"comma-separated list of servers numbers",
	)
	flags.StringVar(&p.hashes,
		"hash", hashers.Default,
		"comma-separated list of hash functions; one of "+strings.Join(hashers.Names(), ", "),
	)
	flags.StringVar(&p.scheme,
		"scheme", chash.SchemeWeighted.String(),
		"virtual nodes scheme",
	)
	flags.IntVar(&p.weight,
		"weight", 1,
		"weight of each server",
	)
	flags.Uint64Var(&p.seed,
		"seed", 0,
		"seed of servers and objects generator; zero means random",
	)
	flags.StringVar(&p.metrics,
		"metrics", "",
		"write prometheus metrics to the given file",
	)
	flags.BoolVar(&p.verbose,
		"v", false,
		"be verbose",
	)
	flags.BoolVar(&p.silent,
		"s", false,
		"be silent",
	)
	flags.BoolVar(&p.csv,
		"csv", true,
		"print csv to standard output",
	)
	if err := flags.Parse(args); err != nil {
		return err
	}

	log := zap.NewNop()
	if p.verbose {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer log.Sync()
	}
	printf := func(f string, args ...interface{}) {
		if p.silent {
			return
		}
		fmt.Fprintf(stderr, f, args...)
	}

	scheme, err := config.ParseScheme(p.scheme)
	if err != nil {
		return err
	}

	// Prepare list of servers numbers. We merge here numbers range (from `lo`
	// to `hi`) with manually specified numbers in `servers`.
	// We use tree to autofix duplicates (if any).
	var (
		sizes   avl.Tree
		maxSize int
	)
	for _, s := range strings.Split(p.servers, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("bad servers number: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("bad servers number: %d", n)
		}
		sizes, _ = sizes.Insert(size(n))
		maxSize = max(maxSize, n)
	}
	for n := max(p.lo, 1); n < p.hi; n++ {
		sizes, _ = sizes.Insert(size(n))
		maxSize = max(maxSize, n)
	}
	if sizes.Size() == 0 {
		return fmt.Errorf("no servers numbers given")
	}
	var names []string
	for _, s := range strings.Split(p.hashes, ",") {
		s = strings.TrimSpace(s)
		if _, err := hashers.Lookup(s); err != nil {
			return err
		}
		names = append(names, s)
	}
	log.Debug("parameters are ready",
		zap.Int("sizes", sizes.Size()),
		zap.Strings("hashes", names),
	)

	seed := p.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rnd := rand.New(rand.NewPCG(seed, seed>>32))

	// Prepare servers to be put on ring(s).
	servers := make([]string, maxSize)
	seenSrv := make(map[string]bool)
	for i := 0; i < maxSize; {
		x := rnd.Uint32()
		ip := net.IPv4(byte(x>>24), byte(x>>16), byte(x>>8), byte(x))
		s := ip.String()
		if seenSrv[s] {
			log.Debug("server duplicated; repeat", zap.Int("index", i))
			continue
		}
		seenSrv[s] = true
		servers[i] = s
		i++
	}
	log.Debug("servers are ready", zap.Int("count", len(servers)))

	// Prepare objects to be spread across servers on ring(s).
	objects := make([]string, p.objects)
	seenObj := make(map[string]bool)
	for i := 0; i < p.objects; {
		s := fmt.Sprintf("%016x", rnd.Uint64())
		if seenObj[s] {
			log.Debug("object duplicated; repeat", zap.Int("index", i))
			continue
		}
		seenObj[s] = true
		objects[i] = s
		i++
	}
	log.Debug("objects are ready", zap.Int("count", len(objects)))

	var (
		reg       = prometheus.NewRegistry()
		collector = ringprom.New(nil)
		deviation = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chash",
			Subsystem: "dist",
			Name:      "stddev_ratio",
			Help:      "Standard deviation of objects per server divided by mean.",
		}, []string{"servers", "hash"})
	)
	reg.MustRegister(collector, deviation)

	var (
		work    = make(chan job)
		results = make(chan result, 1)
		total   = sizes.Size() * len(names)
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		defer close(work)
		var err error
		sizes.InOrder(func(x avl.Item) bool {
			for _, name := range names {
				select {
				case <-ctx.Done():
					err = ctx.Err()
					return false
				case work <- job{servers: int(x.(size)), hash: name}:
				}
			}
			return true
		})
		return err
	})
	var workers errgroup.Group
	for i := 0; i < max(p.parallelism, 1); i++ {
		workers.Go(func() error {
			for j := range work {
				h, _ := hashers.Lookup(j.hash)
				r := chash.New(
					chash.WithHasher(h),
					chash.WithScheme(scheme),
					chash.WithTrace(collector.Trace()),
				)
				res, err := measure(r, j, servers[:j.servers], objects, p.weight)
				if err != nil {
					return err
				}
				deviation.WithLabelValues(strconv.Itoa(j.servers), j.hash).Set(res.stddev / res.mean)
				select {
				case results <- res:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(results)
		return workers.Wait()
	})

	var t avl.Tree
	for r := range results {
		t, _ = t.Insert(r)
		printf(".")
		if n := t.Size(); n%80 == 0 {
			printf(
				"%d/%d(%.1f%%)\n",
				n, total,
				float64(n)/float64(total)*100, // Progress percentage.
			)
		}
	}
	printf("\n")
	if err := g.Wait(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 2, 2, 2, ' ', 0)
	t.InOrder(func(x avl.Item) bool {
		r := x.(result)
		var (
			devPct  = r.stddev / r.mean * 100
			diffPct = float64(r.maxDiff) / r.mean * 100
		)
		log.Info("distribution",
			zap.Int("servers", r.servers),
			zap.String("hash", r.hash),
			zap.Float64("stddev", r.stddev),
			zap.Float64("stddev_pct", devPct),
			zap.Int("max_diff", r.maxDiff),
			zap.Int("virtual_nodes", r.vnodes),
			zap.Duration("latency", r.latency),
		)
		if p.csv {
			fmt.Fprintf(tw,
				"%d,\t%s,\t%.4f,\t%.4f,\t%.2f\n",
				r.servers, r.hash, devPct, diffPct,
				r.latency.Seconds()*1000,
			)
		}
		return true
	})
	tw.Flush()

	if p.metrics != "" {
		if err := prometheus.WriteToTextfile(p.metrics, reg); err != nil {
			return err
		}
	}

	printf("OK\n")

	return nil
}

// measure places servers on r and spreads objects across them.
func measure(r *chash.Ring, j job, servers, objects []string, weight int) (result, error) {
	start := time.Now()
	for _, s := range servers {
		if err := r.AddTarget(s, weight); err != nil {
			return result{}, err
		}
	}
	vnodes, err := r.Freeze()
	if err != nil {
		return result{}, err
	}
	latency := time.Since(start)

	distribution := make(map[string]int, len(servers))
	for _, obj := range objects {
		ret, err := r.Lookup(obj, 1)
		if err != nil {
			return result{}, err
		}
		distribution[ret[0]]++
	}
	var (
		mean     = float64(len(objects)) / float64(len(servers))
		variance float64
		maxDiff  int
	)
	for _, s := range servers {
		d := distribution[s]
		variance += math.Pow(float64(d)-mean, 2)
		if diff := int(math.Abs(float64(d) - mean)); diff > maxDiff {
			maxDiff = diff
		}
	}
	// Divide by number of servers as for mean.
	variance /= float64(len(servers))

	return result{
		servers: j.servers,
		hash:    j.hash,
		latency: latency,
		vnodes:  vnodes,
		mean:    mean,
		stddev:  math.Sqrt(variance),
		maxDiff: maxDiff,
	}, nil
}

type job struct {
	servers int
	hash    string
}

type result struct {
	servers int
	hash    string
	latency time.Duration
	vnodes  int
	mean    float64
	stddev  float64
	maxDiff int
}

func (r result) Compare(x avl.Item) int {
	y := x.(result)
	if c := r.servers - y.servers; c != 0 {
		return c
	}
	return strings.Compare(r.hash, y.hash)
}

type size int

func (s size) Compare(x avl.Item) int {
	return int(s - x.(size))
}
