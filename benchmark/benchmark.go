// Package benchmark drives complete shipment workflows through the job API
// from concurrent workers and reports throughput and latency.
package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config tunes a run
type Config struct {
	BaseURL    string
	Workers    int
	Duration   time.Duration
	Timeout    time.Duration
	Company    string
	TocIDs     []string
	HocIDs     []string
	Proofing   bool // include the broker round-trip
	RecordsDir string
}

// WorkflowResult is the outcome of one shipment
type WorkflowResult struct {
	Success  bool
	Latency  time.Duration
	Steps    map[string]time.Duration
	ErrorMsg string
}

// Result aggregates a run
type Result struct {
	Workers        int
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	Duration       time.Duration
	TPS            float64
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	P50Latency     time.Duration
	P95Latency     time.Duration
	P99Latency     time.Duration
	StepAvg        map[string]time.Duration
	LastError      string
}

// Run starts cfg.Workers workers, each looping over fresh shipments until
// cfg.Duration elapses or ctx ends.
func Run(ctx context.Context, cfg Config, logger cmtlog.Logger) (*Result, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Company == "" {
		cfg.Company = "Bench Logistics"
	}
	if len(cfg.TocIDs) == 0 {
		cfg.TocIDs = []string{"200", "201"}
	}
	if len(cfg.HocIDs) == 0 {
		cfg.HocIDs = []string{"100"}
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var (
		mu        sync.Mutex
		latencies []time.Duration
		stepSum   = map[string]time.Duration{}
		stepCount = map[string]int64{}
		lastErr   string
		total     atomic.Int64
		succeeded atomic.Int64
	)

	logger.Info("Starting workers...", "workers", cfg.Workers, "duration", cfg.Duration, "target", cfg.BaseURL)
	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)
			for gctx.Err() == nil {
				res := runWorkflow(gctx, client, cfg)
				if gctx.Err() != nil && !res.Success {
					// cut off by the deadline, not a real failure
					return nil
				}
				n := total.Add(1)

				mu.Lock()
				if res.Success {
					succeeded.Add(1)
					latencies = append(latencies, res.Latency)
					for step, d := range res.Steps {
						stepSum[step] += d
						stepCount[step]++
					}
				} else {
					lastErr = res.ErrorMsg
				}
				mu.Unlock()

				if n%10 == 0 {
					logger.Info("Progress", "requests", n, "success", succeeded.Load())
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	res := &Result{
		Workers:        cfg.Workers,
		TotalRequests:  total.Load(),
		SuccessfulReqs: succeeded.Load(),
		Duration:       elapsed,
		StepAvg:        make(map[string]time.Duration, len(stepSum)),
		LastError:      lastErr,
	}
	res.FailedReqs = res.TotalRequests - res.SuccessfulReqs
	res.TPS = float64(res.SuccessfulReqs) / elapsed.Seconds()
	for step, sum := range stepSum {
		res.StepAvg[step] = sum / time.Duration(stepCount[step])
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		res.AvgLatency = sum / time.Duration(len(latencies))
		res.MinLatency = latencies[0]
		res.MaxLatency = latencies[len(latencies)-1]
		res.P50Latency = percentile(latencies, 50)
		res.P95Latency = percentile(latencies, 95)
		res.P99Latency = percentile(latencies, 99)
	}
	return res, nil
}

// percentile uses the nearest-rank method on sorted input
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func runWorkflow(ctx context.Context, client *HTTPClient, cfg Config) WorkflowResult {
	instance := strconv.FormatInt(time.Now().UnixNano(), 10)
	steps := make(map[string]time.Duration)
	start := time.Now()

	fail := func(step string, err error) WorkflowResult {
		return WorkflowResult{Latency: time.Since(start), Steps: steps, ErrorMsg: fmt.Sprintf("%s: %v", step, err)}
	}
	job := func(task string, vars map[string]any) (map[string]json.RawMessage, error) {
		t := time.Now()
		out, err := client.Job(ctx, instance, task, vars)
		steps[task] += time.Since(t)
		return out, err
	}

	// 1. Shipment and template
	vars, err := job("set_shipment_information", nil)
	if err != nil {
		return fail("set shipment information", err)
	}
	vars, err = job("define_product_footprint_template", map[string]any{
		"company_name":         cfg.Company,
		"shipment_information": vars["shipment_information"],
	})
	if err != nil {
		return fail("define template", err)
	}
	doc := vars["product_footprint"]
	var sensorData json.RawMessage

	// 2. Alternate transport and hub legs, ending on a transport leg
	for i, toc := range cfg.TocIDs {
		vars, err = job("transport_procedure", map[string]any{
			"tocId":             toc,
			"product_footprint": doc,
			"sensor_data":       sensorData,
		})
		if err != nil {
			return fail("transport "+toc, err)
		}
		doc, sensorData = vars["product_footprint"], vars["sensor_data"]

		if i < len(cfg.HocIDs) && i < len(cfg.TocIDs)-1 {
			vars, err = job("hub_procedure", map[string]any{
				"hocId":             cfg.HocIDs[i],
				"product_footprint": doc,
			})
			if err != nil {
				return fail("hub "+cfg.HocIDs[i], err)
			}
			doc = vars["product_footprint"]
		}
	}

	// 3. Proofing document
	vars, err = job("collect_hoc_toc_data", map[string]any{
		"product_footprint": doc,
		"sensor_data":       sensorData,
	})
	if err != nil {
		return fail("collect operator data", err)
	}
	if cfg.Proofing {
		if _, err := job("send_to_proofing_service", map[string]any{
			"proofing_document": vars["proofing_document"],
		}); err != nil {
			return fail("send to proofing", err)
		}
	}

	// 4. Summary
	if _, err := job("get_tce_chain_summary", map[string]any{"product_footprint": doc}); err != nil {
		return fail("chain summary", err)
	}
	return WorkflowResult{Success: true, Latency: time.Since(start), Steps: steps}
}

// WriteCSV saves res under dir and returns the file path
func WriteCSV(dir string, res *Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf(
		"concurrency_%s_w%d_d%ds_%s.csv",
		timestamp, res.Workers, int(res.Duration.Round(time.Second).Seconds()), uuid.NewString()[:8],
	))

	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	ms := func(d time.Duration) string { return fmt.Sprintf("%.2f", float64(d.Microseconds())/1000) }

	writer := csv.NewWriter(file)
	rows := [][]string{
		{
			"Workers", "Duration_s", "Total_Requests", "Successful", "Failed", "TPS",
			"Avg_Latency_ms", "Min_Latency_ms", "Max_Latency_ms", "P50_ms", "P95_ms", "P99_ms",
		},
		{
			strconv.Itoa(res.Workers),
			fmt.Sprintf("%.2f", res.Duration.Seconds()),
			strconv.FormatInt(res.TotalRequests, 10),
			strconv.FormatInt(res.SuccessfulReqs, 10),
			strconv.FormatInt(res.FailedReqs, 10),
			fmt.Sprintf("%.2f", res.TPS),
			ms(res.AvgLatency), ms(res.MinLatency), ms(res.MaxLatency),
			ms(res.P50Latency), ms(res.P95Latency), ms(res.P99Latency),
		},
	}
	steps := make([]string, 0, len(res.StepAvg))
	for step := range res.StepAvg {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	if len(steps) > 0 {
		rows = append(rows, []string{}, []string{"Step", "Avg_Latency_ms"})
		for _, step := range steps {
			rows = append(rows, []string{step, ms(res.StepAvg[step])})
		}
	}
	if err := writer.WriteAll(rows); err != nil {
		return "", err
	}
	return filename, nil
}

// Print writes the human-readable report in the banner style of the CLI
func Print(res *Result) {
	pct := func(n int64) float64 {
		if res.TotalRequests == 0 {
			return 0
		}
		return float64(n) / float64(res.TotalRequests) * 100
	}
	fmt.Println("\n========================================")
	fmt.Println("   BENCHMARK RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Total Workflows:   %d\n", res.TotalRequests)
	fmt.Printf("Successful:        %d (%.2f%%)\n", res.SuccessfulReqs, pct(res.SuccessfulReqs))
	fmt.Printf("Failed:            %d (%.2f%%)\n", res.FailedReqs, pct(res.FailedReqs))
	fmt.Printf("Duration:          %v\n", res.Duration.Round(time.Millisecond))
	fmt.Printf("Throughput (TPS):  %.2f\n", res.TPS)
	fmt.Printf("Avg Latency:       %v\n", res.AvgLatency)
	fmt.Printf("P50/P95/P99:       %v / %v / %v\n", res.P50Latency, res.P95Latency, res.P99Latency)
	fmt.Printf("Min/Max Latency:   %v / %v\n", res.MinLatency, res.MaxLatency)
	if res.LastError != "" {
		fmt.Printf("Last Error:        %s\n", res.LastError)
	}
	fmt.Println("========================================")
}
