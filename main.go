package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/fastly/pathly-visualizer/internal/bytesize"
	"github.com/fastly/pathly-visualizer/internal/cache"
	"github.com/fastly/pathly-visualizer/internal/config"
	"github.com/fastly/pathly-visualizer/internal/logging"
	"github.com/fastly/pathly-visualizer/internal/prefetch"
	"github.com/fastly/pathly-visualizer/internal/proxy"
	"github.com/fastly/pathly-visualizer/internal/server"
	"github.com/fastly/pathly-visualizer/internal/server/routes"
	"github.com/fastly/pathly-visualizer/internal/source"
	"github.com/fastly/pathly-visualizer/internal/upstream"
	"github.com/fastly/pathly-visualizer/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	prefetch    bool
	showSpace   bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if err := source.Configure(cfg.Sources); err != nil {
		fmt.Fprintf(stdErr, "注册数据源失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["sources"] = source.Keys()
		fields["cache_size"] = cfg.Global.CacheSize
		fields["cache_limit"] = bytesize.Format(cfg.Global.CacheLimit())
		fields["configured_sources"] = config.SourceNames(cfg.Sources)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序为“配置 → 指标 → 上游客户端 → 磁盘缓存 → 具体模式”，
	// 所有模式共享同一个 Store，保证容量统计一致。
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := cache.NewMetrics(registry)

	client := upstream.NewClient(upstream.OptionsFromConfig(cfg.Global, logger))
	store, err := cache.New(cache.Options{
		Directory:     cfg.Global.CacheLocation,
		Capacity:      cfg.Global.CacheSize,
		Client:        client,
		UserAgent:     cfg.Global.UserAgent,
		ClearBakFiles: cfg.Global.ClearBakOnStart,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	if opts.showSpace {
		used, limit := store.CacheSpace()
		fmt.Fprintf(stdOut, "%s / %s (%d entries) in %s\n",
			bytesize.Format(used), bytesize.Format(limit), store.Len(), store.Dir())
		return 0
	}

	if opts.prefetch {
		return runPrefetch(cfg, store, logger)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["sources"] = source.Keys()
	fields["configured_sources"] = config.SourceNames(cfg.Sources)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_dir"] = store.Dir()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, store, registry, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// runPrefetch 预热 Prefetch 中列出的 URL，任一失败时返回非零退出码。
func runPrefetch(cfg *config.Config, store *cache.Store, logger *logrus.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := prefetch.Run(ctx, store, cfg.Global.Prefetch, cfg.Global.FetchWorkers, logger)
	used, limit := store.CacheSpace()
	fmt.Fprintf(stdOut, "prefetched %d urls: %d cached, %d passthrough, %d failed; cache %s / %s\n",
		report.Fetched, report.Cached, report.Passthrough, report.Failed,
		bytesize.Format(used), bytesize.Format(limit))

	if err := report.Err(); err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("pathly-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		warm       bool
		space      bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PATHLY_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&warm, "prefetch", false, "预热 Prefetch 列表中的 URL 后退出")
	fs.BoolVar(&space, "space", false, "输出缓存用量后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("PATHLY_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		prefetch:    warm,
		showSpace:   space,
	}, nil
}

func startHTTPServer(cfg *config.Config, store *cache.Store, gatherer prometheus.Gatherer, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Fetch:      proxy.NewHandler(store, logger),
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterCacheRoutes(app, store)
	routes.RegisterSourceRoutes(app)
	routes.RegisterMetricsRoute(app, gatherer)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
