// attrcache-bench drives the inline cache engine through representative
// attribute-access workloads and reports throughput plus cache state.
//
// Usage:
//
//	attrcache-bench [-n iterations] [-types k] [-v]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"attrcache/pkg/icache"
	"attrcache/pkg/logging"
	"attrcache/pkg/logging/zaplog"
	"attrcache/pkg/objmodel"
)

func main() {
	iterations := flag.Int("n", 1_000_000, "iterations per workload")
	typeCount := flag.Int("types", 4, "distinct receiver types for the polymorphic workload")
	verbose := flag.Bool("v", false, "log engine events")
	flag.Parse()

	var log logging.Logger = logging.NopLogger{}
	if *verbose {
		zl, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
		defer zl.Sync()
		log = zaplog.Logger{L: zl}
	}

	engine := icache.New(icache.WithLogger(log))

	objs := make([]*objmodel.Object, *typeCount)
	for i := range objs {
		ty := objmodel.MustNewType(fmt.Sprintf("Receiver%d", i), nil, objmodel.WithSlots("x"))
		objs[i] = objmodel.NewObject(ty)
		if err := objs[i].SetAttr("x", i); err != nil {
			fmt.Fprintf(os.Stderr, "setup: %v\n", err)
			os.Exit(1)
		}
	}

	monoRate := runWorkload(engine, engine.CompileGuardedAccess(1, "x"), objs[:1], *iterations)
	polyRate := runWorkload(engine, engine.CompileGuardedAccess(2, "x"), objs, *iterations)

	mutType := objmodel.MustNewType("Mutating", nil)
	mutType.SetAttr("x", 0)
	mutObj := objmodel.NewObject(mutType)
	mutSite := engine.CompileGuardedAccess(3, "x")
	start := time.Now()
	for i := 0; i < *iterations; i++ {
		if i%1024 == 0 {
			mutType.SetAttr("x", i)
		}
		if _, err := engine.Evaluate(mutSite, mutObj); err != nil {
			fmt.Fprintf(os.Stderr, "invalidation workload: %v\n", err)
			os.Exit(1)
		}
	}
	invRate := rate(*iterations, time.Since(start))

	fmt.Printf("monomorphic:    %12.0f reads/s\n", monoRate)
	fmt.Printf("polymorphic(%d): %12.0f reads/s  (%.2fx of monomorphic)\n",
		*typeCount, polyRate, polyRate/monoRate)
	fmt.Printf("invalidating:   %12.0f reads/s\n", invRate)

	stats := engine.Stats()
	total := stats.Hits + stats.Misses
	fmt.Printf("engine: %d reads, %d hits (%.1f%%), %d misses\n",
		total, stats.Hits, percent(stats.Hits, total), stats.Misses)
	for _, w := range []struct {
		name string
		site *icache.Site
	}{
		{"monomorphic", engine.CompileGuardedAccess(1, "x")},
		{"polymorphic", engine.CompileGuardedAccess(2, "x")},
		{"invalidating", engine.CompileGuardedAccess(3, "x")},
	} {
		d := engine.Diagnostics(w.site)
		fmt.Printf("  %-12s %s, %d entries, %d hits, %d misses\n",
			w.name, d.State, d.EntryCount, d.HitCount, d.MissCount)
	}
}

func runWorkload(e *icache.Engine, site *icache.Site, objs []*objmodel.Object, n int) float64 {
	start := time.Now()
	for i := 0; i < n; i++ {
		if _, err := e.Evaluate(site, objs[i%len(objs)]); err != nil {
			fmt.Fprintf(os.Stderr, "workload: %v\n", err)
			os.Exit(1)
		}
	}
	return rate(n, time.Since(start))
}

func rate(n int, d time.Duration) float64 {
	return float64(n) / d.Seconds()
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
