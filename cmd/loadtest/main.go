package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const riskWorkflow = `{
  "nodes": [
    {"id": "collect", "kind": "level", "data": {"label": "Collect User Data", "levelName": "Identity", "steps": ["IDENTITY"]}},
    {"id": "risk", "kind": "condition", "data": {"label": "Risk Assessment", "branches": [
      {"name": "High Risk", "condition": "riskScore >= 70"},
      {"name": "Medium Risk", "condition": "riskScore >= 30"}
    ]}},
    {"id": "high", "kind": "action", "data": {"label": "High Risk Actions", "actions": [{"type": "createCase", "title": "Create review case"}]}},
    {"id": "medium", "kind": "action", "data": {"label": "Manual Review"}},
    {"id": "low", "kind": "action", "data": {"label": "Auto-Approve", "actions": [{"type": "approve", "title": "Approve"}]}}
  ],
  "edges": [
    {"source": "collect", "target": "risk"},
    {"source": "risk", "target": "high", "branchTag": "branch-0"},
    {"source": "risk", "target": "medium", "branchTag": "branch-1"},
    {"source": "risk", "target": "low", "branchTag": "else"}
  ]
}`

type options struct {
	baseURL  string
	template string
	file     string
	scores   []int
	rps      int
	duration time.Duration
	workers  int
	timeout  time.Duration
	maxP90   time.Duration
}

type sample struct {
	latency time.Duration
	status  int
	endNode string
	err     error
}

type report struct {
	Requests    int
	Success     int
	Non2xx      int
	Errors      int
	AchievedRPS float64
	Avg         time.Duration
	P50         time.Duration
	P90         time.Duration
	P99         time.Duration
	EndNodes    map[string]int
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	bodies, target, err := buildRequests(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build requests: %v\n", err)
		os.Exit(1)
	}

	samples := run(context.Background(), opts, target, bodies)
	if len(samples) == 0 {
		fmt.Fprintln(os.Stderr, "no requests executed")
		os.Exit(1)
	}

	r := summarize(samples, opts.duration)
	r.print(os.Stdout, opts)
	if !r.pass(opts) {
		fmt.Println("FAIL: does not meet target (or has request errors)")
		os.Exit(1)
	}
	fmt.Printf("PASS: meets %d RPS and P90 < %s\n", opts.rps, opts.maxP90)
}

func parseFlags() (options, error) {
	var o options
	var scores string
	flag.StringVar(&o.baseURL, "url", "http://localhost:8080", "service base URL")
	flag.StringVar(&o.template, "template", "", "run a builtin template instead of posting a workflow")
	flag.StringVar(&o.file, "workflow", "", "workflow document to post (default: built-in risk workflow)")
	flag.StringVar(&scores, "risk-scores", "85,50,10", "comma separated riskScore values, sent round robin")
	flag.IntVar(&o.rps, "rps", 50, "target requests per second")
	flag.DurationVar(&o.duration, "duration", 60*time.Second, "test duration")
	flag.IntVar(&o.workers, "workers", 50, "number of concurrent workers")
	flag.DurationVar(&o.timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.DurationVar(&o.maxP90, "max-p90", 30*time.Millisecond, "P90 latency required to pass")
	flag.Parse()

	if o.rps <= 0 || o.duration <= 0 || o.workers <= 0 {
		return o, fmt.Errorf("rps, duration and workers must be > 0")
	}
	for _, s := range strings.Split(scores, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return o, fmt.Errorf("invalid -risk-scores value %q", s)
		}
		o.scores = append(o.scores, n)
	}
	return o, nil
}

// buildRequests returns one request body per configured score and the URL
// they are posted to.
func buildRequests(o options) ([][]byte, string, error) {
	base := strings.TrimRight(o.baseURL, "/")

	var doc any = json.RawMessage(riskWorkflow)
	format := ""
	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return nil, "", err
		}
		doc = string(data)
		format = formatFromExt(o.file)
	}

	bodies := make([][]byte, 0, len(o.scores))
	for _, score := range o.scores {
		payload := map[string]any{"context": map[string]any{"riskScore": score}}
		if o.template == "" {
			payload["workflow"] = doc
			if format != "" {
				payload["format"] = format
			}
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, "", err
		}
		bodies = append(bodies, b)
	}

	if o.template != "" {
		return bodies, base + "/templates/" + o.template + "/execute", nil
	}
	return bodies, base + "/execute", nil
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".dot", ".gv":
		return "dot"
	}
	return ""
}

func run(ctx context.Context, o options, target string, bodies [][]byte) []sample {
	client := &http.Client{Timeout: o.timeout}
	jobs := make(chan []byte, o.workers)

	var mu sync.Mutex
	samples := make([]sample, 0, o.rps*int(o.duration.Seconds())+1)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < o.workers; i++ {
		g.Go(func() error {
			for body := range jobs {
				s := send(ctx, client, target, body)
				mu.Lock()
				samples = append(samples, s)
				mu.Unlock()
			}
			return nil
		})
	}

	ticker := time.NewTicker(time.Second / time.Duration(o.rps))
	defer ticker.Stop()
	deadline := time.Now().Add(o.duration)

	for n := 0; ; n++ {
		now := <-ticker.C
		if now.After(deadline) {
			break
		}
		jobs <- bodies[n%len(bodies)]
	}
	close(jobs)
	_ = g.Wait()
	return samples
}

func send(ctx context.Context, client *http.Client, target string, body []byte) sample {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return sample{latency: time.Since(start), err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	lat := time.Since(start)
	if err != nil {
		return sample{latency: lat, err: err}
	}
	defer resp.Body.Close()

	s := sample{latency: lat, status: resp.StatusCode}
	var out struct {
		Result struct {
			Summary struct {
				VisitedPath []string `json:"visited_path"`
			} `json:"summary"`
		} `json:"result"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(raw, &out) == nil {
		if p := out.Result.Summary.VisitedPath; len(p) > 0 {
			s.endNode = p[len(p)-1]
		}
	}
	return s
}

func summarize(samples []sample, duration time.Duration) report {
	r := report{Requests: len(samples), EndNodes: map[string]int{}}
	latencies := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		latencies = append(latencies, s.latency)
		switch {
		case s.err != nil:
			r.Errors++
			continue
		case s.status >= 200 && s.status < 300:
			r.Success++
		default:
			r.Non2xx++
		}
		if s.endNode != "" {
			r.EndNodes[s.endNode]++
		}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	r.P50 = percentile(latencies, 50)
	r.P90 = percentile(latencies, 90)
	r.P99 = percentile(latencies, 99)
	r.Avg = average(latencies)
	if duration > 0 {
		r.AchievedRPS = float64(len(latencies)) / duration.Seconds()
	}
	return r
}

func (r report) pass(o options) bool {
	minRPS := float64(o.rps) * 0.98
	return r.AchievedRPS >= minRPS && r.P90 < o.maxP90 && r.Errors == 0 && r.Non2xx == 0
}

func (r report) print(w io.Writer, o options) {
	fmt.Fprintf(w, "Load test finished\n")
	fmt.Fprintf(w, "- target_rps: %d\n", o.rps)
	fmt.Fprintf(w, "- achieved_rps: %.2f\n", r.AchievedRPS)
	fmt.Fprintf(w, "- duration: %s\n", o.duration)
	fmt.Fprintf(w, "- requests: %d\n", r.Requests)
	fmt.Fprintf(w, "- 2xx: %d\n", r.Success)
	fmt.Fprintf(w, "- non_2xx: %d\n", r.Non2xx)
	fmt.Fprintf(w, "- errors: %d\n", r.Errors)
	fmt.Fprintf(w, "- avg_ms: %.3f\n", ms(r.Avg))
	fmt.Fprintf(w, "- p50_ms: %.3f\n", ms(r.P50))
	fmt.Fprintf(w, "- p90_ms: %.3f\n", ms(r.P90))
	fmt.Fprintf(w, "- p99_ms: %.3f\n", ms(r.P99))

	ends := make([]string, 0, len(r.EndNodes))
	for id := range r.EndNodes {
		ends = append(ends, id)
	}
	sort.Strings(ends)
	for _, id := range ends {
		fmt.Fprintf(w, "- end_node[%s]: %d\n", id, r.EndNodes[id])
	}
}

func percentile(items []time.Duration, p int) time.Duration {
	if len(items) == 0 {
		return 0
	}
	idx := (len(items) - 1) * p / 100
	return items[idx]
}

func average(items []time.Duration) time.Duration {
	if len(items) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range items {
		total += d
	}
	return total / time.Duration(len(items))
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
