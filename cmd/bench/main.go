package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	inventoryserver "github.com/technikum29/t29-inventory-server"
	"github.com/technikum29/t29-inventory-server/pkg/core"
)

// Measures commit throughput of the coordinator: several authors
// stage and commit disjoint patches concurrently against one
// repository, so every commit goes through the global write lock and
// the re-validation path.
func main() {
	commits := flag.Int("commits", 100, "Number of commits per author")
	authors := flag.Int("authors", 4, "Number of concurrent authors")
	keep := flag.Bool("keep", false, "Keep the benchmark repository after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "inventory_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sys := inventoryserver.New(
		filepath.Join(benchDir, "repo"),
		filepath.Join(benchDir, "patches"),
		inventoryserver.WithLogger(logger),
	)

	ctx := context.Background()
	if err := sys.Initialize(ctx); err != nil {
		panic(err)
	}

	fmt.Printf("Running %d commits x %d authors in %s...\n", *commits, *authors, benchDir)

	var conflicts atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for a := 0; a < *authors; a++ {
		wg.Add(1)
		go func(a int) {
			defer wg.Done()
			author := fmt.Sprintf("bench-author-%d", a)
			for i := 0; i < *commits; i++ {
				patch := fmt.Sprintf(`[{"op":"add","path":"/author%d","value":%d}]`, a, i)
				if _, err := sys.Service.Submit(ctx, author, []byte(patch)); err != nil {
					panic(err)
				}
				if _, _, err := sys.Service.Commit(ctx, author, ""); err != nil {
					var conflict *core.ConflictError
					if errors.As(err, &conflict) {
						conflicts.Add(1)
						continue
					}
					panic(err)
				}
			}
		}(a)
	}
	wg.Wait()
	duration := time.Since(start)

	total := *commits * *authors
	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d commits, %d authors):\n", total, *authors)
	fmt.Printf("  Total:      %v\n", duration)
	fmt.Printf("  Per commit: %v\n", duration/time.Duration(total))
	fmt.Printf("  Conflicts:  %d\n", conflicts.Load())
	fmt.Printf("--------------------------------------------------\n")
}
