// Command rqdemo drives a renderq RenderSystem from several goroutines.
//
// A simulation goroutine records frames on a deferred context while a
// worker pool queues result-returning commands on the global queue. When
// all frames are played the command prints the render system statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/renderq"
	_ "github.com/gogpu/renderq/backend/native"
	"github.com/gogpu/renderq/backend/software"
	"github.com/gogpu/renderq/backend/trace"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		backend    = flag.String("backend", "", "backend name (overrides config)")
		frames     = flag.Int("frames", 120, "number of frames to record")
		uploads    = flag.Int("uploads", 64, "number of worker commands to queue")
		workers    = flag.Int("workers", 4, "worker pool size")
		width      = flag.Int("width", 320, "render target width")
		height     = flag.Int("height", 240, "render target height")
		traceOut   = flag.String("trace", "", "write a call trace to this file")
		output     = flag.String("output", "", "save the last software frame as PNG")
	)
	flag.Parse()

	cfg := renderq.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = renderq.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *backend != "" {
		cfg.Backend = *backend
	}

	api, err := renderq.NewBackend(cfg.Backend)
	if err != nil {
		log.Fatalf("Failed to open backend: %v (available: %v)", err, renderq.Backends())
	}
	var recorder *trace.Recorder
	if *traceOut != "" {
		f, err := os.Create(*traceOut)
		if err != nil {
			log.Fatalf("Failed to create trace: %v", err)
		}
		defer f.Close()
		recorder = trace.Tee(f, api)
		api = recorder
	}

	rs := renderq.NewRenderSystem(api, cfg.Options()...)
	if err := rs.Start(); err != nil {
		log.Fatalf("Failed to start render system: %v", err)
	}

	s := newScene(uint32(*width), uint32(*height)) //nolint:gosec // flag values are small
	start := time.Now()

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return simulate(ctx, rs, s, *frames) })
	g.Go(func() error { return upload(ctx, rs, *uploads, *workers) })
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	if recorder != nil {
		if err := recorder.Flush(); err != nil {
			log.Printf("Trace: %v", err)
		}
	}
	if runErr != nil {
		log.Fatalf("Demo failed: %v", runErr)
	}

	printStats(rs.Stats(), time.Since(start))

	if *output != "" {
		if err := savePNG(rs, s.target, *output); err != nil {
			log.Fatalf("Failed to save: %v", err)
		}
		log.Printf("Last frame saved to %s", *output)
	}
}

// simulate records frames on a deferred context owned by its goroutine
// and submits each one without waiting. The last submission blocks until
// the render thread has played it.
func simulate(ctx context.Context, rs *renderq.RenderSystem, s *scene, frames int) error {
	dc := rs.CreateDeferredContext()
	defer rs.ReleaseDeferredContext(dc)

	for n := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.record(dc, n); err != nil {
			return fmt.Errorf("record frame %d: %w", n, err)
		}
		if err := rs.SubmitContext(dc, n == frames-1); err != nil {
			return fmt.Errorf("submit frame %d: %w", n, err)
		}
	}
	return nil
}

// upload fans commands out over a worker pool. Each worker queues a
// command that checksums a payload on the render thread and waits for the
// result.
func upload(ctx context.Context, rs *renderq.RenderSystem, count, workers int) error {
	pool := worker.NewDynamicWorkerPool(workers, 256, time.Second)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total uint32
		errs  []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for i := range count {
		wg.Add(1)
		payload := []byte(fmt.Sprintf("payload-%04d", i))
		pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				op, err := rs.QueueReturnCommand(func(op *renderq.AsyncOp) {
					op.MarkAsResolved(crc32.ChecksumIEEE(payload))
				}, false)
				if err != nil {
					fail(err)
					return nil, err
				}
				if err := op.Wait(ctx); err != nil {
					fail(err)
					return nil, err
				}
				sum, _ := renderq.ReturnValueAs[uint32](op)
				mu.Lock()
				total ^= sum
				mu.Unlock()
				return sum, nil
			},
		})
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("upload: %d of %d commands failed: %w", len(errs), count, errs[0])
	}
	renderq.Logger().Info("uploads complete", "commands", count, "checksum", fmt.Sprintf("%08x", total))
	return nil
}

func printStats(st renderq.Stats, elapsed time.Duration) {
	fmt.Printf("elapsed:           %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("loop iterations:   %d\n", st.Iterations)
	fmt.Printf("queue batches:     %d\n", st.QueueBatches)
	fmt.Printf("commands executed: %d/%d\n", st.ExecutedCommands, st.QueuedCommands)
	fmt.Printf("frames:            %d submitted, %d played, %d dropped\n",
		st.FramesSubmitted, st.FramesPlayed, st.FramesDropped)
	fmt.Printf("gpu commands:      %d (%d errors)\n", st.GPUCommands, st.SubmitErrors)
}

// savePNG writes the last presented frame of the software backend.
func savePNG(rs *renderq.RenderSystem, target *renderq.RenderTarget, path string) error {
	api := rs.API()
	if r, ok := api.(*trace.Recorder); ok {
		api = r.Next()
	}
	sw, ok := api.(*software.Backend)
	if !ok {
		return fmt.Errorf("-output needs the %s backend, have %T", software.BackendName, api)
	}
	img := image.NewRGBA(image.Rect(0, 0, int(target.Width), int(target.Height)))
	if err := sw.PresentTo(img, target); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
