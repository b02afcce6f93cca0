package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/redis"
	"github.com/pior/redis/internal/promexporter"
	"github.com/rs/zerolog"
)

type OperationType string

const (
	CacheHit     OperationType = "cache-hit"
	DynamicValue OperationType = "dynamic-value"
	CacheMiss    OperationType = "cache-miss"
	Publish      OperationType = "publish"
	All          OperationType = "all"
)

var operations = []OperationType{CacheHit, DynamicValue, CacheMiss, Publish}

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

// worker runs one iteration and reports whether the reply was correct.
type worker func(ctx context.Context, client *redis.Client, workerID, iteration int) (ok bool, err error)

func main() {
	var (
		operation   = flag.String("operation", "all", "Operation type: cache-hit, dynamic-value, cache-miss, publish, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 4, "Number of concurrent workers")
		servers     = flag.String("servers", "localhost:6379", "Comma-separated list of redis servers")
		maxSize     = flag.Int("pool-size", 20, "Maximum connections per server")
		puddle      = flag.Bool("puddle", false, "Use the puddle connection pool")
		metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9121)")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	config := redis.Config{
		MaxSize:           int32(*maxSize),
		Logger:            logger,
		NewCircuitBreaker: redis.NewCircuitBreakerConfig(3, time.Minute, 5*time.Second, logger),
	}
	if *puddle {
		config.Pool = redis.NewPuddlePool
	}

	client, err := redis.NewClient(redis.NewStaticServers(strings.Split(*servers, ",")...), config)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create client")
	}
	defer client.Close()

	if *metricsAddr != "" {
		exporter := promexporter.NewExporter(client)
		go func() {
			if err := exporter.ListenAndServe(*metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		logger.Info().Str("addr", *metricsAddr).Msg("serving metrics on /metrics")
	}

	fmt.Printf("Redis Benchmark Tool\n")
	fmt.Printf("====================\n")
	fmt.Printf("Operation: %s\n", *operation)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Servers: %s\n", *servers)
	fmt.Println()

	fmt.Print("Testing connection...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = client.Ping(ctx)
	cancel()
	if err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure redis is running on %s\n", *servers)
		os.Exit(1)
	}
	fmt.Println(" success!")

	selected := []OperationType{OperationType(*operation)}
	if selected[0] == All {
		selected = operations
	}

	for _, op := range selected {
		fmt.Printf("\n--- Running %s benchmark ---\n", op)
		printResult(runOperation(client, op, *duration, *concurrency))
	}

	printStats(client)
}

func runOperation(client *redis.Client, op OperationType, duration time.Duration, concurrency int) *BenchmarkResult {
	ctx := context.Background()

	var fn worker
	switch op {
	case CacheHit:
		value := []byte("cache-hit-value")
		if err := client.Set(ctx, redis.Item{Key: "cache-hit-key", Value: value, TTL: time.Hour}); err != nil {
			return &BenchmarkResult{Operation: op, ErrorMessage: fmt.Sprintf("Failed to set initial value: %v", err)}
		}
		fn = func(ctx context.Context, client *redis.Client, _, _ int) (bool, error) {
			item, err := client.Get(ctx, "cache-hit-key")
			return item.Found && string(item.Value) == string(value), err
		}

	case DynamicValue:
		fn = func(ctx context.Context, client *redis.Client, workerID, i int) (bool, error) {
			key := fmt.Sprintf("dynamic-key-%d-%d", workerID, i)
			value := []byte(fmt.Sprintf("dynamic-value-%d-%d", workerID, i))
			if err := client.Set(ctx, redis.Item{Key: key, Value: value, TTL: time.Minute}); err != nil {
				return false, err
			}
			item, err := client.Get(ctx, key)
			return item.Found && string(item.Value) == string(value), err
		}

	case CacheMiss:
		fn = func(ctx context.Context, client *redis.Client, workerID, i int) (bool, error) {
			item, err := client.Get(ctx, fmt.Sprintf("nonexistent-key-%d-%d", workerID, i))
			return !item.Found, err
		}

	case Publish:
		fn = func(ctx context.Context, client *redis.Client, workerID, _ int) (bool, error) {
			n, err := client.Publish(ctx, fmt.Sprintf("bench-channel-%d", workerID), []byte("payload"))
			return n >= 0, err
		}

	default:
		return &BenchmarkResult{Operation: op, ErrorMessage: fmt.Sprintf("Unknown operation: %s", op)}
	}

	return runWorkers(client, op, fn, duration, concurrency)
}

func runWorkers(client *redis.Client, op OperationType, fn worker, duration time.Duration, concurrency int) *BenchmarkResult {
	result := &BenchmarkResult{Operation: op, Correctness: true}
	var totalOps, successes, failures, totalLatency atomic.Int64
	var mismatch atomic.Bool

	ctx := context.Background()
	startTime := time.Now()
	var wg sync.WaitGroup

	for workerID := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := 0; time.Since(startTime) < duration; i++ {
				opStart := time.Now()
				ok, err := fn(ctx, client, workerID, i)
				totalLatency.Add(int64(time.Since(opStart)))
				totalOps.Add(1)

				switch {
				case err != nil:
					failures.Add(1)
				case !ok:
					failures.Add(1)
					mismatch.Store(true)
				default:
					successes.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	result.Duration = time.Since(startTime)
	result.TotalOps = totalOps.Load()
	result.Successes = successes.Load()
	result.Failures = failures.Load()
	if mismatch.Load() {
		result.Correctness = false
		result.ErrorMessage = "Unexpected reply"
	}

	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(totalLatency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / result.Duration.Seconds()
	}

	return result
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	if result.ErrorMessage != "" && result.TotalOps == 0 {
		fmt.Printf("  Error: %s\n", result.ErrorMessage)
		return
	}
	fmt.Printf("  Duration: %v\n", result.Duration)
	fmt.Printf("  Total Operations: %d\n", result.TotalOps)
	fmt.Printf("  Successes: %d\n", result.Successes)
	fmt.Printf("  Failures: %d\n", result.Failures)
	fmt.Printf("  Average Latency: %v\n", result.AvgLatency)
	fmt.Printf("  Operations/Second: %.2f\n", result.OpsPerSecond)
	fmt.Printf("  Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", result.ErrorMessage)
	}
}

func printStats(client *redis.Client) {
	stats := client.Stats()
	fmt.Printf("\nClient: gets=%d hits=%d sets=%d publishes=%d errors=%d\n",
		stats.Gets, stats.GetHits, stats.Sets, stats.Publishes, stats.Errors)

	for _, ps := range client.AllPoolStats() {
		fmt.Printf("Pool %s: created=%d destroyed=%d acquires=%d waits=%d breaker=%s\n",
			ps.Addr,
			ps.PoolStats.CreatedConns,
			ps.PoolStats.DestroyedConns,
			ps.PoolStats.AcquireCount,
			ps.PoolStats.AcquireWaitCount,
			ps.CircuitBreakerState,
		)
	}
}
