// Command relcorebench drives the clustered B-tree directly (bypassing
// engine/ statement dispatch) to measure raw insert/lookup throughput
// and latency, reusing the teacher's key-distribution generator and
// latency histogram.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/relcore/engine/common/benchmark"
	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/bufpool"
	"github.com/relcore/engine/internal/btreeindex"
	"github.com/relcore/engine/internal/pagefile"
	"github.com/relcore/engine/internal/table"
)

func main() {
	numKeys := flag.Int("keys", 100000, "number of keys to insert")
	distName := flag.String("distribution", "uniform", "key access distribution for the lookup phase: uniform, zipfian, sequential, latest")
	lookups := flag.Int("lookups", 50000, "number of lookups to run after the insert phase")
	fanout := flag.Int("fanout", btreeindex.DefaultFanout, "B-tree node fan-out")
	flag.Parse()

	fmt.Println("relcore B-tree Benchmark")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Keys: %d   Lookups: %d   Fanout: %d   Distribution: %s\n\n",
		*numKeys, *lookups, *fanout, *distName)

	dir, err := os.MkdirTemp("", "relcorebench-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, "mkdtemp:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	files := pagefile.New()
	pool := bufpool.New(files, 512)
	fid := files.Open(dir + "/bench.tbl")
	handle := table.Open(pool, fid)
	tree := btreeindex.NewTree(handle, alloc.Null, *fanout)

	insertLatency := benchmark.NewLatencyHistogram()
	start := time.Now()
	for i := 0; i < *numKeys; i++ {
		key := btreeindex.EncodeKey([]btreeindex.KeyPart{btreeindex.IntPart(int64(i))})
		ptr := alloc.SlotPtr{Page: uint32(i + 1), Slot: 1}

		opStart := time.Now()
		if err := tree.Insert(key, ptr, true); err != nil {
			fmt.Fprintln(os.Stderr, "insert:", err)
			os.Exit(1)
		}
		insertLatency.Record(time.Since(opStart))
	}
	insertElapsed := time.Since(start)

	kg := benchmark.NewKeyGenerator(*numKeys, 16, distribution(*distName), 42)
	lookupLatency := benchmark.NewLatencyHistogram()
	hits := 0
	start = time.Now()
	for i := 0; i < *lookups; i++ {
		n := kg.NextKeyInt()
		key := btreeindex.EncodeKey([]btreeindex.KeyPart{btreeindex.IntPart(int64(n))})

		opStart := time.Now()
		if _, found := tree.Get(key); found {
			hits++
		}
		lookupLatency.Record(time.Since(opStart))
	}
	lookupElapsed := time.Since(start)

	handle.Close(pool, fid)
	pool.Close()

	printPhase("Insert", *numKeys, insertElapsed, insertLatency.Stats())
	printPhase("Lookup", *lookups, lookupElapsed, lookupLatency.Stats())
	fmt.Printf("\nLookup hit rate: %.1f%%\n", 100*float64(hits)/float64(*lookups))
}

func distribution(name string) benchmark.KeyDistribution {
	switch name {
	case "zipfian":
		return benchmark.DistZipfian
	case "sequential":
		return benchmark.DistSequential
	case "latest":
		return benchmark.DistLatest
	default:
		return benchmark.DistUniform
	}
}

func printPhase(label string, ops int, elapsed time.Duration, stats benchmark.LatencyStats) {
	fmt.Printf("\n--- %s ---\n", label)
	fmt.Printf("Throughput: %.0f ops/sec\n", float64(ops)/elapsed.Seconds())
	fmt.Printf("Latency  min=%s mean=%s p50=%s p95=%s p99=%s max=%s\n",
		stats.Min, stats.Mean, stats.P50, stats.P95, stats.P99, stats.Max)
}
