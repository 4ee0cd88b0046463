package common

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
)

// BenchmarkResult holds the formatted benchmark results.
type BenchmarkResult struct {
	Duration          string  `json:"duration"`
	Clients           int     `json:"clients"`
	TotalRequests     int64   `json:"total_requests"`
	TotalBytes        int64   `json:"total_bytes"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	BytesPerSecond    float64 `json:"bytes_per_second"`
	LatencyMin        string  `json:"latency_min,omitempty"`
	LatencyMean       string  `json:"latency_mean,omitempty"`
	LatencyP50        string  `json:"latency_p50,omitempty"`
	LatencyP95        string  `json:"latency_p95,omitempty"`
	LatencyP99        string  `json:"latency_p99,omitempty"`
	LatencyP999       string  `json:"latency_p999,omitempty"`
	LatencyMax        string  `json:"latency_max,omitempty"`
	Errors            int64   `json:"errors"`
	Mismatches        int64   `json:"mismatches"`
}

// NewBenchmarkResult summarizes stats for a run with the given number of
// clients.
func NewBenchmarkResult(stats *Stats, clients int) BenchmarkResult {
	result := BenchmarkResult{
		Duration:          durafmt.Parse(stats.Duration()).String(),
		Clients:           clients,
		TotalRequests:     stats.Requests(),
		TotalBytes:        stats.Bytes(),
		RequestsPerSecond: stats.RequestsPerSecond(),
		BytesPerSecond:    stats.BytesPerSecond(),
		Errors:            stats.Errors(),
		Mismatches:        stats.Mismatches(),
	}

	// Include latency stats if we have samples
	if stats.LatencyCount() > 0 {
		result.LatencyMin = stats.LatencyMin().String()
		result.LatencyMean = stats.LatencyMean().String()
		result.LatencyP50 = stats.LatencyPercentile(50).String()
		result.LatencyP95 = stats.LatencyPercentile(95).String()
		result.LatencyP99 = stats.LatencyPercentile(99).String()
		result.LatencyP999 = stats.LatencyPercentile(99.9).String()
		result.LatencyMax = stats.LatencyMax().String()
	}
	return result
}

// PrintResults writes the benchmark results to w as text or JSON.
func PrintResults(w io.Writer, result BenchmarkResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		return printText(w, result)
	}
}

func printText(out io.Writer, r BenchmarkResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "=== Relay Benchmark Results ===")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:\t%s\n", r.Duration)
	fmt.Fprintf(w, "Clients:\t%d\n", r.Clients)
	fmt.Fprintf(w, "Round Trips:\t%s\n", humanize.Comma(r.TotalRequests))
	fmt.Fprintf(w, "Bytes Encrypted:\t%s\n", humanize.Bytes(uint64(r.TotalBytes)))
	fmt.Fprintf(w, "Throughput:\t%s round trips/sec\n", humanize.CommafWithDigits(r.RequestsPerSecond, 2))
	fmt.Fprintf(w, "Bandwidth:\t%s/sec\n", humanize.Bytes(uint64(r.BytesPerSecond)))
	fmt.Fprintln(w, "")

	if r.LatencyP50 != "" {
		fmt.Fprintln(w, "--- Round Trip Latency ---")
		fmt.Fprintf(w, "Min:\t%s\n", r.LatencyMin)
		fmt.Fprintf(w, "Mean:\t%s\n", r.LatencyMean)
		fmt.Fprintf(w, "P50:\t%s\n", r.LatencyP50)
		fmt.Fprintf(w, "P95:\t%s\n", r.LatencyP95)
		fmt.Fprintf(w, "P99:\t%s\n", r.LatencyP99)
		fmt.Fprintf(w, "P99.9:\t%s\n", r.LatencyP999)
		fmt.Fprintf(w, "Max:\t%s\n", r.LatencyMax)
		fmt.Fprintln(w, "")
	}

	fmt.Fprintf(w, "Errors:\t%d\n", r.Errors)
	fmt.Fprintf(w, "Mismatches:\t%d\n", r.Mismatches)
	fmt.Fprintln(w, "")
	return w.Flush()
}
