// Command vexd serves a vex engine over the binary TCP protocol, optionally
// bulk-loading a base corpus before accepting traffic.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	vex "github.com/vexsearch/vex"
	"github.com/vexsearch/vex/server"
)

// Config is the vexd YAML configuration. Flags override Addr and LogLevel.
type Config struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	Dimension      int `yaml:"dimension"`
	MaxElements    int `yaml:"max_elements"`
	M              int `yaml:"m"`
	EFConstruction int `yaml:"ef_construction"`
	BufferCapacity int `yaml:"buffer_capacity"`
	BGThreads      int `yaml:"bg_threads"`
	SoftLimit      int `yaml:"soft_limit"`
	HardLimit      int `yaml:"hard_limit"`

	// BasePath points at a raw little-endian float32 file holding the base
	// corpus as count × dimension values. Loaded with dense ids from 0.
	BasePath string `yaml:"base_path"`

	LogLevel string `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Addr:           ":8000",
		Dimension:      128,
		MaxElements:    1_000_000,
		M:              16,
		EFConstruction: 200,
		BufferCapacity: 50_000,
		BGThreads:      2,
		SoftLimit:      3,
		HardLimit:      6,
		LogLevel:       "info",
	}
}

func main() {
	var (
		cfgPath  string
		addr     string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:           "vexd",
		Short:         "vexd serves approximate nearest-neighbor search over TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultConfig()
			if cfgPath != "" {
				raw, err := os.ReadFile(cfgPath)
				if err != nil {
					return fmt.Errorf("read config: %w", err)
				}
				if err := yaml.Unmarshal(raw, &cfg); err != nil {
					return fmt.Errorf("parse config: %w", err)
				}
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			return run(cmd.Context(), cfg)
		},
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file")
	rootCmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "vexd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	logger := vex.NewTextLogger(parseLevel(cfg.LogLevel))

	db, err := vex.New(cfg.Dimension, cfg.MaxElements,
		vex.WithM(cfg.M),
		vex.WithEFConstruction(cfg.EFConstruction),
		vex.WithBufferCapacity(cfg.BufferCapacity),
		vex.WithBGThreads(cfg.BGThreads),
		vex.WithBackpressure(cfg.SoftLimit, cfg.HardLimit),
		vex.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.BasePath != "" {
		if err := bulkLoad(ctx, db, cfg, logger); err != nil {
			return err
		}
	}

	srv := server.New(db, func(o *server.Options) {
		o.Logger = logger
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(cfg.Addr); err != server.ErrServerClosed {
			return err
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	g.Go(func() error {
		<-ctx.Done()
		srv.Shutdown()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

// bulkLoad reads the flattened base corpus and builds the graph across all
// cores before the server starts.
func bulkLoad(ctx context.Context, db *vex.Vex, cfg Config, logger *vex.Logger) error {
	raw, err := os.ReadFile(cfg.BasePath)
	if err != nil {
		return fmt.Errorf("read base corpus: %w", err)
	}
	if len(raw)%(4*cfg.Dimension) != 0 {
		return fmt.Errorf("base corpus %s is not a whole number of %d-float records", cfg.BasePath, cfg.Dimension)
	}

	vectors := make([]float32, len(raw)/4)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}

	count := len(vectors) / cfg.Dimension
	logger.Info("bulk load starting", "vectors", count, "path", cfg.BasePath)

	start := time.Now()
	if err := db.BulkLoad(ctx, vectors, 0); err != nil {
		return err
	}
	logger.Info("bulk load finished", "vectors", count, "elapsed", time.Since(start))
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
