// Command loadtest is a tiny concurrent load generator for the /limited
// endpoint, ported from original_source/scripts/load_test.py: fire N
// requests at a given concurrency, optionally varying the client identity
// per request, and report a status-code histogram plus latency
// percentiles.
package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

type result struct {
	status    int
	latencyMs float64
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	url := fs.String("url", "http://localhost:8080/limited", "target URL")
	requests := fs.Int("requests", 200, "total number of requests")
	concurrency := fs.Int("concurrency", 25, "number of concurrent workers")
	timeout := fs.Duration("timeout", 2*time.Second, "per-request timeout")
	singleClient := fs.Bool("single-client", false, "all requests use the same client identity (expect 429s)")
	uniqueClients := fs.Bool("unique-clients", false, "vary X-Real-IP per request to simulate many clients")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *singleClient && *uniqueClients {
		fmt.Fprintln(out, "--single-client and --unique-clients are mutually exclusive")
		return 2
	}
	if *requests <= 0 {
		fmt.Fprintln(out, "--requests must be > 0")
		return 2
	}
	if *concurrency <= 0 {
		fmt.Fprintln(out, "--concurrency must be > 0")
		return 2
	}

	client := &http.Client{Timeout: *timeout}

	results := make([]result, *requests)
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = oneRequest(client, *url, headersFor(i, *singleClient, *uniqueClients))
			}
		}()
	}

	start := time.Now()
	for i := 0; i < *requests; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	report(out, *url, *requests, *concurrency, elapsed, results)

	for _, r := range results {
		if r.status == 0 {
			return 2
		}
	}
	return 0
}

func headersFor(i int, singleClient, uniqueClients bool) http.Header {
	h := http.Header{"User-Agent": []string{"rate-limiter-load-test"}}
	switch {
	case uniqueClients:
		ip := fmt.Sprintf("10.%d.%d.%d", rand.Intn(256), rand.Intn(256), 1+rand.Intn(254))
		h.Set("X-Real-IP", ip)
	case singleClient:
		h.Set("X-Real-IP", "10.0.0.1")
	}
	return h
}

func oneRequest(client *http.Client, url string, headers http.Header) result {
	start := time.Now()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return result{status: 0, latencyMs: 0}
	}
	req.Header = headers

	resp, err := client.Do(req)
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return result{status: 0, latencyMs: latency}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return result{status: resp.StatusCode, latencyMs: latency}
}

func report(out io.Writer, url string, requests, concurrency int, elapsed time.Duration, results []result) {
	counts := map[int]int{}
	latencies := make([]float64, 0, len(results))
	for _, r := range results {
		counts[r.status]++
		latencies = append(latencies, r.latencyMs)
	}
	sort.Float64s(latencies)

	fmt.Fprintf(out, "URL: %s\n", url)
	fmt.Fprintf(out, "Requests: %d, Concurrency: %d, Time: %.3fs\n", requests, concurrency, elapsed.Seconds())
	fmt.Fprintln(out, "Status counts:")

	codes := make([]int, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "  %d: %d\n", code, counts[code])
	}

	fmt.Fprintln(out, "Latency (ms):")
	fmt.Fprintf(out, "  mean=%.2f\n", mean(latencies))
	fmt.Fprintf(out, "  p50=%.2f  p90=%.2f  p99=%.2f\n", percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// percentile assumes xs is already sorted ascending.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	k := int(p/100.0*float64(len(xs)-1) + 0.5)
	if k < 0 {
		k = 0
	}
	if k > len(xs)-1 {
		k = len(xs) - 1
	}
	return xs[k]
}
