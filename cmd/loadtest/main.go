// Command loadtest replays a query mix against a running searcher and prints
// throughput, latency percentiles, the zero-result rate and a status-code
// breakdown.
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 16 -duration 30s [-rps 500] [-queries queries.txt]
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var defaultQueries = []string{
	"stage", "usd stage open", "hydra render delegate", "camera",
	"Gf.Camera", "layer composition", "variant set", "payload",
	"prim attribute", "UsdGeom.Mesh", "material binding", "xform op",
	"time samples", "collection api", "schema -deprecated", "sdf path",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RPS         float64
	Limit       int
	Queries     []string
}

// sample is one finished request. status is 0 when the request never got a
// response.
type sample struct {
	latency time.Duration
	status  int
	hits    int
}

func (s sample) ok() bool { return s.status >= 200 && s.status < 300 }

// recorder collects samples from all workers.
type recorder struct {
	mu      sync.Mutex
	samples []sample
}

func (r *recorder) add(s sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

// summary is the digest printed at the end of a run.
type summary struct {
	total, succeeded, failed, zeroHits int
	elapsed                            time.Duration
	latencies                          []time.Duration // ascending, responses only
	statuses                           map[int]int
}

func (r *recorder) summarize(elapsed time.Duration) summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := summary{total: len(r.samples), elapsed: elapsed, statuses: make(map[int]int)}
	for _, s := range r.samples {
		if s.status == 0 {
			sum.failed++
			continue
		}
		sum.statuses[s.status]++
		sum.latencies = append(sum.latencies, s.latency)
		if !s.ok() {
			sum.failed++
			continue
		}
		sum.succeeded++
		if s.hits == 0 {
			sum.zeroHits++
		}
	}
	slices.Sort(sum.latencies)
	return sum
}

// write prints the report and reports whether any request completed.
func (s summary) write(w io.Writer) bool {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Successful:      %d\n", s.succeeded)
	fmt.Fprintf(w, "Errors:          %d\n", s.failed)
	if s.total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the searcher running?")
		return false
	}
	fmt.Fprintf(w, "Error Rate:      %.2f%%\n", pct(s.failed, s.total))
	fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/s.elapsed.Seconds())
	if s.succeeded > 0 {
		fmt.Fprintf(w, "Zero Results:    %.2f%%\n", pct(s.zeroHits, s.succeeded))
	}

	if n := len(s.latencies); n > 0 {
		var total time.Duration
		for _, l := range s.latencies {
			total += l
		}
		mean := total / time.Duration(n)
		var sq float64
		for _, l := range s.latencies {
			d := float64(l - mean)
			sq += d * d
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", s.latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", mean)
		for _, p := range []int{50, 90, 95, 99} {
			fmt.Fprintf(w, "P%d:    %s\n", p, percentile(s.latencies, p))
		}
		fmt.Fprintf(w, "Max:    %s\n", s.latencies[n-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(n))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range slices.Sorted(maps.Keys(s.statuses)) {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statuses[code])
	}
	return true
}

func pct(part, whole int) float64 { return float64(part) / float64(whole) * 100 }

// percentile picks the nearest-rank value from an ascending slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	return sorted[max(rank-1, 0)]
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the searcher")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&cfg.RPS, "rps", 0, "overall request rate cap, 0 for unlimited")
	flag.IntVar(&cfg.Limit, "limit", 10, "results requested per query")
	queryFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Queries = defaultQueries
	if *queryFile != "" {
		q, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		cfg.Queries = q
	}

	fmt.Printf("=== Doc Search Load Test ===\n%s, %d workers, %s, %d queries", cfg.BaseURL, cfg.Concurrency, cfg.Duration, len(cfg.Queries))
	if cfg.RPS > 0 {
		fmt.Printf(", capped at %.0f req/s", cfg.RPS)
	}
	fmt.Print("\n\n")

	if !runLoadTest(cfg).write(os.Stdout) {
		os.Exit(1)
	}
}

// readQueries reads one query per line, skipping blanks and # comments.
func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, errors.New("no queries in file")
	}
	return queries, nil
}

func runLoadTest(cfg Config) summary {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	rec := &recorder{}
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ; i++ {
				if limiter.Wait(gctx) != nil {
					return nil
				}
				q := cfg.Queries[i%len(cfg.Queries)]
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(q), cfg.Limit)
				s := search(gctx, client, target)
				if gctx.Err() != nil {
					return nil
				}
				rec.add(s)
			}
		})
	}
	_ = g.Wait()
	return rec.summarize(time.Since(start))
}

func search(ctx context.Context, client *http.Client, target string) sample {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return sample{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return sample{}
	}
	defer resp.Body.Close()

	s := sample{status: resp.StatusCode}
	if s.ok() {
		var body struct {
			TotalHits int `json:"totalHits"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return sample{}
		}
		s.hits = body.TotalHits
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	s.latency = time.Since(start)
	return s
}
