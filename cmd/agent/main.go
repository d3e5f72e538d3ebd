package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hara602/datrain/internal/analysis"
	"github.com/Hara602/datrain/internal/audit"
	"github.com/Hara602/datrain/internal/cache"
	"github.com/Hara602/datrain/internal/config"
	"github.com/Hara602/datrain/internal/gate"
	"github.com/Hara602/datrain/internal/intake"
	"github.com/Hara602/datrain/internal/privacy"
	"github.com/Hara602/datrain/internal/scanner"
	"github.com/Hara602/datrain/internal/status"
	"github.com/Hara602/datrain/internal/syncdir"
	"github.com/Hara602/datrain/internal/sysutil"
	"github.com/Hara602/datrain/internal/watcher"
)

// 构建信息，由 ldflags 注入
var (
	version = "dev"
	commit  = "unknown"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "datrain",
		Short:         "Secure download-caching agent",
		Long:          "DatRain gates newly downloaded files through an external scanner\nand commits the accepted ones into a protected cache.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			sysutil.InitLogger(verbose)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the intake pipeline until interrupted",
		RunE:  runCommand,
	}

	tickCmd := &cobra.Command{
		Use:   "tick",
		Short: "Run exactly one intake pass and exit",
		RunE:  tickCommand,
	}

	syncTestCmd := &cobra.Command{
		Use:   "sync-test",
		Short: "Touch a placeholder file in the sync folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := syncdir.Discover()
			if err != nil {
				return err
			}
			path, err := syncdir.TouchPlaceholder(dir)
			if err != nil {
				return err
			}
			sysutil.Log.Info("Placeholder written, watch for it in the cloud", zap.String("path", path))
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Copy cached artifacts into the sync folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.CacheDir == "" {
				return fmt.Errorf("DATRAIN_CACHE_DIR is required for export")
			}
			dir, err := syncdir.Discover()
			if err != nil {
				return err
			}
			n, err := syncdir.Export(cfg.CacheDir, dir)
			if err != nil {
				return err
			}
			sysutil.Log.Info("Export finished", zap.Int("copied", n), zap.String("sync_dir", dir))
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("datrain %s (%s)\n", version, commit)
		},
	}

	rootCmd.AddCommand(runCmd, tickCmd, syncTestCmd, exportCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// pipeline 一次装配的全部核心组件
type pipeline struct {
	cfg       *config.Config
	store     *cache.Store
	trail     *audit.Trail
	scheduler *intake.Scheduler
	registry  *prometheus.Registry
}

// buildPipeline 校验配置并依赖注入，配置错误在这里即致命
func buildPipeline() (*pipeline, error) {
	cfg := config.Load()

	// 缓存目录留空时回退到同步盘自动发现
	if cfg.CacheDir == "" {
		dir, err := syncdir.Discover()
		if err != nil {
			return nil, fmt.Errorf("no cache dir configured and %w", err)
		}
		cfg.CacheDir = dir
		sysutil.Log.Info("🔍 Using discovered sync folder as cache root", zap.String("dir", dir))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := cache.Open(cfg.CacheDir, cfg.DBPath, cfg.MinFreeBytes)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	trail, err := audit.NewTrail(cfg.AuditPath, cfg.AuditBuffer, registry)
	if err != nil {
		store.Close()
		return nil, err
	}
	metrics, err := gate.NewMetrics(registry)
	if err != nil {
		store.Close()
		return nil, err
	}
	sc, err := scanner.NewSubprocess(cfg.ScannerCmd, cfg.ScanTimeout)
	if err != nil {
		store.Close()
		return nil, err
	}

	g := gate.New(sc, store, analysis.NewInspector(), trail,
		privacy.New(cfg.PrivacyCmd, cfg.PrivacyTimeout),
		metrics, cfg.StabilityDelay, cfg.QuarantineDir)

	return &pipeline{
		cfg:       cfg,
		store:     store,
		trail:     trail,
		scheduler: intake.NewScheduler(g, store, cfg.InboundDir, cfg.Workers),
		registry:  registry,
	}, nil
}

func (p *pipeline) close() {
	if err := p.trail.Close(); err != nil {
		sysutil.Log.Error("Audit close failed", zap.Error(err))
	}
	if err := p.store.Close(); err != nil {
		sysutil.Log.Error("Cache close failed", zap.Error(err))
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	defer sysutil.Log.Sync()
	sysutil.Log.Info("🛡️ DatRain Agent Starting...", zap.String("version", version))

	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	// 捕获操作系统信号，优雅关闭：在途扫描走完或超时，提交绝不中途被杀
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if p.cfg.StatusAddr != "" {
		srv := status.New(p.registry, p.store, p.trail)
		srv.Start(p.cfg.StatusAddr)
		defer srv.Shutdown()
	}

	// 可移动介质作为额外入站来源 (仅 Linux)
	if p.cfg.WatchRemovable {
		w := watcher.New()
		mounts, err := w.Start()
		if err != nil {
			sysutil.Log.Error("Removable media watcher init failed", zap.Error(err))
		} else if mounts != nil {
			defer w.Stop()
			go p.scheduler.ConsumeMounts(mounts)
		}
	}

	p.scheduler.Run(ctx, p.cfg.TickInterval)
	sysutil.Log.Info("Shutting down...")
	return nil
}

func tickCommand(cmd *cobra.Command, args []string) error {
	defer sysutil.Log.Sync()

	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	p.scheduler.Tick(context.Background())
	return nil
}
