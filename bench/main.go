package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli"

	"github.com/cipherrelay/cipherrelay/bench/common"
	"github.com/cipherrelay/cipherrelay/client"
	"github.com/cipherrelay/cipherrelay/server"
	"github.com/cipherrelay/cipherrelay/server/logger"
)

func main() {
	app := cli.NewApp()
	app.Name = "cipherrelay-bench"
	app.Usage = "Benchmark tool for cipherrelay round trips"
	app.Version = server.Version
	app.Flags = getFlags()
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "host",
			Usage: "Relay server IPv4 or IPv6 address",
			Value: "127.0.0.1",
		},
		cli.IntFlag{
			Name:  "port, p",
			Usage: "Relay server port",
			Value: server.DefaultPort,
		},
		cli.IntFlag{
			Name:  "clients, c",
			Usage: "Number of concurrent clients, each with its own key",
			Value: 10,
		},
		cli.IntFlag{
			Name:  "requests, n",
			Usage: "Round trips per client",
			Value: 1000,
		},
		cli.IntFlag{
			Name:  "message-size, ms",
			Usage: "Size of each message in bytes",
			Value: 256,
		},
		cli.DurationFlag{
			Name:  "timeout",
			Usage: "Timeout for a single round trip",
			Value: 10 * time.Second,
		},
		cli.StringFlag{
			Name:  "output, o",
			Usage: "Output format: text, json",
			Value: "text",
		},
	}
}

func run(c *cli.Context) error {
	clients := c.Int("clients")
	requests := c.Int("requests")
	messageSize := c.Int("message-size")
	outputFormat := c.String("output")

	// Validate
	if clients <= 0 {
		return fmt.Errorf("clients must be > 0")
	}
	if requests <= 0 {
		return fmt.Errorf("requests must be > 0")
	}
	if messageSize < 0 {
		return fmt.Errorf("message-size must be >= 0")
	}

	config := client.DefaultConfig(c.String("host"), c.Int("port"))
	config.Timeout = c.Duration("timeout")
	config.MaxEnvelopeBytes = 0
	log := logger.NewLogger(0)
	log.Silent(true)
	relay, err := client.New(config, log)
	if err != nil {
		return err
	}

	// Pre-generate requests (NOT timed)
	fmt.Printf("Pre-generating %d requests of %d bytes each...\n", clients*requests, messageSize)
	prepared := common.PreGenerateRequests(clients, requests, messageSize)

	stats := common.NewStats()

	fmt.Printf("Starting benchmark against %s (%s) with %d concurrent client(s)...\n",
		relay.Endpoint(), relay.Endpoint().Family, clients)
	fmt.Println("---")

	stats.Start()
	runBenchmark(context.Background(), relay, prepared, stats, 2*time.Second)
	stats.Stop()

	return common.PrintResults(os.Stdout, common.NewBenchmarkResult(stats, clients), outputFormat)
}

// runBenchmark runs one worker per request slice, each doing its round trips
// sequentially, and reports progress every interval.
func runBenchmark(
	ctx context.Context,
	relay *client.Client,
	prepared [][]common.PreparedRequest,
	stats *common.Stats,
	interval time.Duration,
) {
	var wg sync.WaitGroup
	total := common.TotalRequestCount(prepared)

	// Progress counter
	var completed int64
	progressTicker := time.NewTicker(interval)
	defer progressTicker.Stop()

	// Progress reporter
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-progressTicker.C:
				count := atomic.LoadInt64(&completed)
				pct := float64(count) / float64(total) * 100
				fmt.Printf("Progress: %d/%d (%.1f%%)\n", count, total, pct)
			case <-done:
				return
			}
		}
	}()

	for _, reqs := range prepared {
		wg.Add(1)
		go func(reqs []common.PreparedRequest) {
			defer wg.Done()
			for _, req := range reqs {
				result, err := relay.RoundTrip(ctx, req.Key, req.Message)
				atomic.AddInt64(&completed, 1)
				switch err {
				case nil:
					stats.RecordRoundTrip(len(req.Message), result.Elapsed)
				case client.ErrRoundTripMismatch:
					stats.RecordMismatch()
				default:
					stats.RecordError()
				}
			}
		}(reqs)
	}

	wg.Wait()
	close(done)
}
