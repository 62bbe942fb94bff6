// Command foam assembles detector trains into images, records per-train
// statistics and serves debug pages for the latest image.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/foam/internal/array"
	"github.com/banshee-data/foam/internal/config"
	"github.com/banshee-data/foam/internal/geometry"
	"github.com/banshee-data/foam/internal/imageproc"
	"github.com/banshee-data/foam/internal/monitor"
	"github.com/banshee-data/foam/internal/pipeline"
	"github.com/banshee-data/foam/internal/storage/sqlite"
	"github.com/banshee-data/foam/internal/version"
	"github.com/banshee-data/foam/internal/workpool"
)

var (
	configPath  = flag.String("config", "", "Pipeline config JSON (defaults apply when empty)")
	inputPath   = flag.String("input", "", "Raw little-endian float32 train file to replay")
	pulses      = flag.Int("pulses", 0, "Pulses per train in -input (0 for pulse-less trains)")
	devMode     = flag.Bool("dev", false, "Generate synthetic trains instead of reading -input")
	trains      = flag.Int("trains", 100, "Number of synthetic trains in dev mode (0 runs until interrupted)")
	badEvery    = flag.Int("bad-every", 0, "In dev mode, drop a module from every n-th train")
	dbPath      = flag.String("db", "", "Statistics database (defaults to the config database_path; \"off\" disables)")
	listen      = flag.String("listen", "", "Serve debug pages on this address and keep running until interrupted")
	pngPath     = flag.String("png", "", "Write the final masked mean image as a heatmap to this file")
	tiffPath    = flag.String("tiff", "", "Write the final masked mean image as a 16-bit TIFF to this file")
	edgesPath   = flag.String("edges", "", "Write the edges of the final image as a heatmap to this file")
	verbose     = flag.Bool("v", false, "Log processor diagnostics")
	trace       = flag.Bool("trace", false, "Log per-train timings")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// options is the parsed command line.
type options struct {
	configPath string
	inputPath  string
	pulses     int
	dev        bool
	trains     int
	badEvery   int
	dbPath     string
	listen     string
	pngPath    string
	tiffPath   string
	edgesPath  string
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("foam %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	var diag, tr io.Writer
	if *verbose || *trace {
		diag = os.Stderr
	}
	if *trace {
		tr = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diag, tr)
	geometry.SetLogWriters(os.Stderr, diag, tr)
	workpool.SetLogWriter(diag)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, options{
		configPath: *configPath,
		inputPath:  *inputPath,
		pulses:     *pulses,
		dev:        *devMode,
		trains:     *trains,
		badEvery:   *badEvery,
		dbPath:     *dbPath,
		listen:     *listen,
		pngPath:    *pngPath,
		tiffPath:   *tiffPath,
		edgesPath:  *edgesPath,
	}, os.Stdout)
	if err != nil {
		log.Fatalf("foam: %v", err)
	}
}

func loadConfig(path string) (*config.PipelineConfig, error) {
	if path == "" {
		return config.DefaultPipelineConfig(), nil
	}
	return config.LoadPipelineConfig(path)
}

func run(ctx context.Context, o options, out io.Writer) error {
	if o.inputPath == "" && !o.dev {
		return errors.New("either -input or -dev is required")
	}
	if o.inputPath != "" && o.dev {
		return errors.New("-input and -dev are mutually exclusive")
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	pool := workpool.New(cfg.GetWorkers())
	defer pool.Close()

	g, err := cfg.Geometry().Build(geometry.WithPool(pool))
	if err != nil {
		return err
	}
	popts := pipeline.OptionsFromConfig(cfg, g)
	popts.PulseMean = imageproc.PulseMeanOptions{MaxWorkers: cfg.GetWorkers()}
	proc, err := pipeline.NewProcessor(popts)
	if err != nil {
		return err
	}

	snap := monitor.NewSnapshot(monitor.Options{History: cfg.GetFOMHistory(), Edge: popts.Edge})
	sinks := pipeline.MultiSink{snap}

	var db *sqlite.DB
	path := o.dbPath
	if path == "" {
		path = cfg.GetDatabasePath()
	}
	if path != "off" {
		if db, err = sqlite.Open(path); err != nil {
			return fmt.Errorf("failed to open database %s: %w", path, err)
		}
		defer db.Close()

		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		grid := g.GridShape()
		r, err := sqlite.NewRunStore(db).Start(g.Variant().Name, grid[0], grid[1], string(cfgJSON))
		if err != nil {
			return err
		}
		log.Printf("recording run %s in %s", r.RunID, path)
		sinks = append(sinks, sqlite.NewTrainStore(db, r.RunID))
	}

	var wg sync.WaitGroup
	if o.listen != "" {
		mux := http.NewServeMux()
		if db != nil {
			if err := db.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
		snap.AttachAdminRoutes(mux)
		monitor.AttachControlRoutes(mux, proc)
		server := &http.Server{Addr: o.listen, Handler: mux}

		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("failed to start server: %v", err)
				}
			}()
			<-ctx.Done()
			log.Println("shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
		log.Printf("debug pages on http://%s/debug/", o.listen)
	}

	var in <-chan pipeline.RawTrain
	source := cfg.GetDetector()
	if o.dev {
		in = pipeline.SyntheticSource{
			Geometry: g,
			Pulses:   o.pulses,
			Source:   source,
			Seed:     uint64(time.Now().UnixNano()),
			BadEvery: o.badEvery,
		}.Trains(ctx, o.trains)
	} else {
		f, err := os.Open(o.inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = pipeline.ReplayRaw(ctx, f, g, o.pulses, 1, source)
	}

	st, err := pipeline.Run(ctx, proc, in, sinks)
	fmt.Fprintf(out, "processed %d trains, skipped %d\n", st.Processed, st.Skipped)
	if err != nil {
		return err
	}

	if err := export(snap, o); err != nil {
		return err
	}

	if o.listen != "" {
		<-ctx.Done()
		wg.Wait()
	}
	return nil
}

// export writes the requested files for the latest image.
func export(snap *monitor.Snapshot, o options) error {
	if o.pngPath == "" && o.tiffPath == "" && o.edgesPath == "" {
		return nil
	}
	img, id, ok := snap.Latest()
	if !ok {
		return errors.New("no train was processed, nothing to export")
	}
	if o.pngPath != "" {
		if err := monitor.WriteHeatmapPNG(img, o.pngPath, fmt.Sprintf("train %d", id)); err != nil {
			return err
		}
	}
	if o.tiffPath != "" {
		f, err := os.Create(o.tiffPath)
		if err != nil {
			return err
		}
		if err := monitor.WriteTIFF(f, img); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if o.edgesPath != "" {
		edges, _, err := snap.Edges()
		if err != nil {
			return err
		}
		m := array.New[float32](edges.Rows, edges.Cols)
		for i, on := range edges.Data {
			if on {
				m.Data[i] = 1
			}
		}
		if err := monitor.WriteHeatmapPNG(m, o.edgesPath, fmt.Sprintf("edges, train %d", id)); err != nil {
			return err
		}
	}
	return nil
}
