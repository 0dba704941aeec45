package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shardkv/client/internal/config"
	"github.com/shardkv/client/internal/dispatch"
	"github.com/shardkv/client/internal/rconn"
)

// BenchConfig holds bench run parameters.
type BenchConfig struct {
	Ops            int
	Concurrency    int
	ReportInterval time.Duration
}

// BenchStats tracks bench run metrics.
type BenchStats struct {
	TotalOps   uint64
	Successes  uint64
	Failures   uint64
	TotalDur   time.Duration
	AvgLatency time.Duration
	MaxLatency time.Duration
	MinLatency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration
	OpsPerSec  float64
}

func main() {
	seeds := flag.String("seeds", "127.0.0.1:6379", "comma-separated node addresses")
	cluster := flag.Bool("cluster", false, "treat seeds as a cluster and discover topology via CLUSTER SLOTS")
	ops := flag.Int("ops", 1000, "number of SET operations to issue")
	concurrency := flag.Int("concurrency", 50, "number of concurrent workers")
	reportInterval := flag.Duration("report", 5*time.Second, "stats reporting interval")
	flag.Parse()

	cfg := config.Get()
	benchCfg := BenchConfig{Ops: *ops, Concurrency: *concurrency, ReportInterval: *reportInterval}

	slog.Info("starting shardkv-bench", "ops", benchCfg.Ops, "concurrency", benchCfg.Concurrency, "cluster", *cluster)

	facade, closeFn, err := buildFacade(strings.Split(*seeds, ","), *cluster, cfg)
	if err != nil {
		slog.Error("failed to build facade", "error", err)
		return
	}
	defer closeFn()

	stats := run(facade, benchCfg)
	printResults(stats)
}

func buildFacade(seeds []string, clusterMode bool, cfg *config.Config) (*dispatch.CommandFacade, func() error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mgr, err := rconn.NewManager(ctx, rconn.Options{
		Seeds:       seeds,
		ClusterMode: clusterMode,
		DialTimeout: 3 * time.Second,
	}, dispatch.BytesCodec{})
	if err != nil {
		return nil, nil, err
	}

	var metrics *dispatch.Metrics
	if cfg.Metrics.Enabled {
		metrics = dispatch.NewMetrics(cfg.Metrics.Namespace)
	}

	facade := dispatch.NewCommandFacade(
		mgr,
		dispatch.RetryOptions{
			Attempts:       cfg.Retry.Attempts,
			Interval:       cfg.Retry.Interval(),
			AttemptTimeout: cfg.Retry.Timeout(),
		},
		cfg.ScriptCache.Enabled,
		cfg.ScriptCache.Capacity,
		metrics,
	)
	return facade, mgr.Close, nil
}

func run(facade *dispatch.CommandFacade, cfg BenchConfig) *BenchStats {
	stats := &BenchStats{MinLatency: time.Hour}
	var latencies []time.Duration
	var latenciesMu sync.Mutex

	opChan := make(chan int, cfg.Ops)
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reportStats(ctx, stats, cfg.ReportInterval)

	start := time.Now()
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for opID := range opChan {
				runOne(ctx, facade, workerID, opID, stats, &latencies, &latenciesMu)
			}
		}(i)
	}

	for i := 0; i < cfg.Ops; i++ {
		opChan <- i
	}
	close(opChan)
	wg.Wait()

	stats.TotalDur = time.Since(start)
	stats.OpsPerSec = float64(stats.TotalOps) / stats.TotalDur.Seconds()

	latenciesMu.Lock()
	if len(latencies) > 0 {
		stats.AvgLatency = average(latencies)
		stats.P95Latency = percentile(latencies, 95)
		stats.P99Latency = percentile(latencies, 99)
	}
	latenciesMu.Unlock()

	return stats
}

func runOne(ctx context.Context, facade *dispatch.CommandFacade, workerID, opID int, stats *BenchStats, latencies *[]time.Duration, mu *sync.Mutex) {
	key := fmt.Sprintf("bench:%d:%d", workerID, opID)
	value := fmt.Sprintf("value-%d-%d", workerID, opID)

	start := time.Now()
	setPromise, err := facade.WriteKeyValue(ctx, key, dispatch.NewCommand("SET", nil, nil), value)
	if err == nil {
		_, err = facade.SyncGet(ctx, setPromise)
	}
	latency := time.Since(start)

	atomic.AddUint64(&stats.TotalOps, 1)
	if err != nil {
		atomic.AddUint64(&stats.Failures, 1)
	} else {
		atomic.AddUint64(&stats.Successes, 1)
	}

	mu.Lock()
	*latencies = append(*latencies, latency)
	if latency > stats.MaxLatency {
		stats.MaxLatency = latency
	}
	if latency < stats.MinLatency {
		stats.MinLatency = latency
	}
	mu.Unlock()
}

func reportStats(ctx context.Context, stats *BenchStats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("progress", "ops", atomic.LoadUint64(&stats.TotalOps), "failures", atomic.LoadUint64(&stats.Failures))
		}
	}
}

func average(d []time.Duration) time.Duration {
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p int) time.Duration {
	sorted := append([]time.Duration(nil), d...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (len(sorted) * p) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printResults(stats *BenchStats) {
	slog.Info("bench complete",
		"total_ops", stats.TotalOps,
		"successes", stats.Successes,
		"failures", stats.Failures,
		"duration", stats.TotalDur,
		"ops_per_sec", stats.OpsPerSec,
		"avg_latency", stats.AvgLatency,
		"p95_latency", stats.P95Latency,
		"p99_latency", stats.P99Latency,
		"max_latency", stats.MaxLatency,
	)
}
