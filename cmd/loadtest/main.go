// Command loadtest drives a mixed search and ingest workload against a
// running search server and prints latency and cache statistics per query
// kind.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var vocabulary = []string{
	"inverted", "index", "snapshot", "generation", "commit", "rollback",
	"snippet", "highlight", "fuzzy", "prefix", "range", "phrase",
	"tokenizer", "analyzer", "segment", "merge", "reader", "writer",
}

type config struct {
	baseURL        string
	concurrency    int
	duration       time.Duration
	field          string
	ingestInterval time.Duration
	ingestBatch    int
}

type kindStats struct {
	requests  int
	errors    int
	cacheHits int
	latencies []time.Duration
}

type stats struct {
	mu     sync.Mutex
	kinds  map[string]*kindStats
	status map[int]int
}

func newStats() *stats {
	return &stats{kinds: make(map[string]*kindStats), status: make(map[int]int)}
}

func (s *stats) record(kind string, d time.Duration, status int, cacheHit bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.kinds[kind]
	if !ok {
		k = &kindStats{}
		s.kinds[kind] = k
	}
	k.requests++
	if err != nil || status < 200 || status >= 300 {
		k.errors++
	}
	if err != nil {
		return
	}
	s.status[status]++
	if cacheHit {
		k.cacheHits++
	}
	k.latencies = append(k.latencies, d)
}

func main() {
	var cfg config
	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the search server")
	flag.IntVar(&cfg.concurrency, "concurrency", 10, "number of concurrent search workers")
	flag.DurationVar(&cfg.duration, "duration", 30*time.Second, "test duration")
	flag.StringVar(&cfg.field, "field", "title", "text field to search and ingest")
	flag.DurationVar(&cfg.ingestInterval, "ingest-interval", 0, "interval between committed ingest batches (0 disables ingest)")
	flag.IntVar(&cfg.ingestBatch, "ingest-batch", 50, "documents per ingest batch")
	flag.Parse()

	fmt.Println("=== Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.baseURL)
	fmt.Printf("Concurrency: %d\n", cfg.concurrency)
	fmt.Printf("Duration:    %s\n", cfg.duration)
	fmt.Printf("Field:       %s\n", cfg.field)
	if cfg.ingestInterval > 0 {
		fmt.Printf("Ingest:      %d docs every %s\n", cfg.ingestBatch, cfg.ingestInterval)
	}
	fmt.Println()

	s := run(cfg)
	if !report(s, cfg.duration) {
		os.Exit(1)
	}
}

func run(cfg config) *stats {
	s := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.concurrency; w++ {
		rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
		g.Go(func() error {
			for gctx.Err() == nil {
				kind, path, params := nextSearch(rng, cfg.field)
				searchOnce(gctx, client, s, cfg.baseURL, kind, path, params)
			}
			return nil
		})
	}
	if cfg.ingestInterval > 0 {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(cfg.concurrency), 7))
			ticker := time.NewTicker(cfg.ingestInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					ingestOnce(gctx, client, s, cfg, rng)
				}
			}
		})
	}

	fmt.Print("Running")
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()
	_ = g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return s
}

// nextSearch picks a query kind with a read-heavy mix dominated by parsed
// queries.
func nextSearch(rng *rand.Rand, field string) (kind, path string, params url.Values) {
	word := vocabulary[rng.IntN(len(vocabulary))]
	switch n := rng.IntN(10); {
	case n < 5:
		q := word
		if rng.IntN(2) == 0 {
			q = fmt.Sprintf("%s AND %s", word, vocabulary[rng.IntN(len(vocabulary))])
		}
		return "query", "/api/v1/search", url.Values{"q": {q}, "snippets": {field}}
	case n < 7:
		return "term", "/api/v1/search/term", url.Values{"field": {field}, "value": {word}}
	case n < 9:
		return "prefix", "/api/v1/search/prefix", url.Values{"field": {field}, "prefix": {word[:3]}}
	default:
		return "fuzzy", "/api/v1/search/fuzzy", url.Values{"field": {field}, "term": {typo(rng, word)}, "distance": {"1"}}
	}
}

// typo drops one character so fuzzy searches have something to correct.
func typo(rng *rand.Rand, word string) string {
	i := rng.IntN(len(word))
	return word[:i] + word[i+1:]
}

func searchOnce(ctx context.Context, client *http.Client, s *stats, baseURL, kind, path string, params url.Values) {
	params.Set("limit", "10")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		s.record(kind, 0, 0, false, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	d := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.record(kind, d, 0, false, err)
		}
		return
	}
	defer resp.Body.Close()
	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	s.record(kind, d, resp.StatusCode, body.CacheHit, nil)
}

func ingestOnce(ctx context.Context, client *http.Client, s *stats, cfg config, rng *rand.Rand) {
	docs := make([]map[string]any, cfg.ingestBatch)
	for i := range docs {
		words := make([]string, 4)
		for j := range words {
			words[j] = vocabulary[rng.IntN(len(vocabulary))]
		}
		docs[i] = map[string]any{cfg.field: strings.Join(words, " ")}
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		s.record("ingest", 0, 0, false, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/v1/documents?commit=true", bytes.NewReader(payload))
	if err != nil {
		s.record("ingest", 0, 0, false, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := client.Do(req)
	d := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.record("ingest", d, 0, false, err)
		}
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	s.record("ingest", d, resp.StatusCode, false, nil)
}

func report(s *stats, duration time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := make([]string, 0, len(s.kinds))
	total, errors := 0, 0
	for kind, k := range s.kinds {
		kinds = append(kinds, kind)
		total += k.requests
		errors += k.errors
	}
	sort.Strings(kinds)

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Errors:          %d\n", errors)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	for _, kind := range kinds {
		k := s.kinds[kind]
		fmt.Println()
		fmt.Printf("=== %s (%d requests, %d errors) ===\n", kind, k.requests, k.errors)
		if len(k.latencies) == 0 {
			continue
		}
		lat := k.latencies
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		var sum time.Duration
		for _, l := range lat {
			sum += l
		}
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(lat)))
		fmt.Printf("P50:    %s\n", percentile(lat, 50))
		fmt.Printf("P95:    %s\n", percentile(lat, 95))
		fmt.Printf("P99:    %s\n", percentile(lat, 99))
		fmt.Printf("Max:    %s\n", lat[len(lat)-1])
		if kind != "ingest" {
			fmt.Printf("Cache:  %.1f%% hits\n", float64(k.cacheHits)/float64(len(lat))*100)
		}
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(s.status))
	for code := range s.status {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, s.status[code])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the server running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
