// =============================================================================
// tokenflow 主入口
// =============================================================================
// 同一条流式管道的两种外壳：命令行直接输出与 HTTP 分块输出
//
// 使用方法:
//
//	tokenflow --mode direct --topic cats          # 直接在终端输出
//	tokenflow --mode api --port 8000              # 启动 HTTP 服务
//	tokenflow run --client bridged --graph        # 回调桥接 + 图编排
//	tokenflow serve --config config.yaml          # 指定配置文件
//	tokenflow version                             # 显示版本信息
//	tokenflow health --addr http://localhost:8000 # 健康检查
// =============================================================================

// @title tokenflow API
// @version 1.0.0
// @description Token streaming over chunked HTTP and WebSocket.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8000
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/tokenflow/config"
	"github.com/BaSui01/tokenflow/internal/telemetry"
	"github.com/BaSui01/tokenflow/internal/tlsutil"
	"github.com/BaSui01/tokenflow/source"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 进程退出码
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return runRoot(args, stdout, stderr)
	}

	switch args[0] {
	case "run":
		opts, err := parseOptions("run", args[1:], stderr, false)
		if err != nil {
			return usageExit(stderr, err)
		}
		return runDirect(opts, stdout, stderr)
	case "serve":
		opts, err := parseOptions("serve", args[1:], stderr, false)
		if err != nil {
			return usageExit(stderr, err)
		}
		return runServe(opts, stderr)
	case "version":
		printVersion(stdout)
		return exitOK
	case "health":
		return runHealthCheck(args[1:], stdout, stderr)
	case "help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
}

// runRoot 处理不带子命令的调用，由 --mode 选择直接输出或 HTTP 服务
func runRoot(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions("tokenflow", args, stderr, true)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout)
			return exitOK
		}
		return usageExit(stderr, err)
	}
	if opts.mode == modeAPI {
		return runServe(opts, stderr)
	}
	return runDirect(opts, stdout, stderr)
}

// =============================================================================
// 🚩 命令行参数
// =============================================================================

const (
	modeDirect = "direct"
	modeAPI    = "api"
)

type options struct {
	configPath string
	mode       string
	topic      string
	host       string
	port       int
	selection  source.Selection
}

// parseOptions 解析公共参数。参数值非法时返回的错误对应退出码 2。
func parseOptions(name string, args []string, stderr io.Writer, withMode bool) (options, error) {
	var (
		opts   options
		client string
	)

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	if withMode {
		fs.StringVar(&opts.mode, "mode", modeDirect, "Execution mode: direct or api")
	}
	fs.StringVar(&client, "client", "direct", "Token producer: direct or bridged")
	fs.BoolVar(&opts.selection.Graph, "graph", false, "Run the producer inside the single-node graph")
	fs.StringVar(&opts.topic, "topic", source.DefaultTopic, "Joke topic (direct mode)")
	fs.StringVar(&opts.host, "host", "", "Listen host (api mode)")
	fs.IntVar(&opts.port, "port", 0, "Listen port (api mode), overrides config")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if withMode {
		switch opts.mode {
		case modeDirect, modeAPI:
		default:
			return options{}, fmt.Errorf("invalid --mode %q (want direct or api)", opts.mode)
		}
	}

	kind, err := source.ParseKind(client)
	if err != nil {
		return options{}, fmt.Errorf("invalid --client: %w", err)
	}
	opts.selection.Kind = kind

	if opts.port < 0 || opts.port > 65535 {
		return options{}, fmt.Errorf("invalid --port %d", opts.port)
	}
	return opts, nil
}

func usageExit(stderr io.Writer, err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	fmt.Fprintf(stderr, "tokenflow: %v\n", err)
	return exitUsage
}

// =============================================================================
// ▶️ run 命令（终端直接输出）
// =============================================================================

func runDirect(opts options, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	// 终端模式下 stdout 只输出流内容
	logger := initLogger(cfg.Log, true)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe, err := newPipeline(cfg, opts.selection, logger, nil, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to build pipeline: %v\n", err)
		return exitFailure
	}

	return runCLI(ctx, pipe, promptBuilder(cfg.Upstream, cfg.Stream), opts.topic, opts.selection.Graph, stdout, stderr)
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(opts options, stderr io.Writer) int {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}
	if opts.port > 0 {
		cfg.Server.HTTPPort = opts.port
	}

	logger := initLogger(cfg.Log, false)
	defer logger.Sync()

	logger.Info("Starting tokenflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("source", opts.selection.Label()),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger,
		telemetry.WithServiceVersion(Version),
		telemetry.WithSourceLabel(opts.selection.Label()),
	)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, opts.selection, opts.host, logger, otelProviders)
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
		return exitFailure
	}

	srv.WaitForShutdown()
	logger.Info("tokenflow stopped")
	return exitOK
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8000", "Server address")
	if err := fs.Parse(args); err != nil {
		return usageExit(stderr, err)
	}

	client := tlsutil.SecureHTTPClient(5 * time.Second)
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return exitFailure
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return exitFailure
	}

	fmt.Fprintln(stdout, "OK")
	return exitOK
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tokenflow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `tokenflow - token streaming pipeline

Usage:
  tokenflow [--mode direct|api] [options]
  tokenflow <command> [options]

Commands:
  run       Stream one answer to the terminal
  serve     Start the HTTP server (GET /stream, GET /ws/stream)
  version   Show version information
  health    Check server health
  help      Show this help message

Options:
  --mode <direct|api>      Root invocation only (default direct)
  --client <direct|bridged> Token producer (default direct)
  --graph                  Run the producer inside the single-node graph
  --topic <text>           Topic for run mode (default dogs)
  --host <host>            Listen host for api mode
  --port <port>            Listen port for api mode
  --config <path>          Path to configuration file (YAML)

Examples:
  tokenflow --topic cats
  tokenflow --mode api --client bridged --graph
  tokenflow serve --config /etc/tokenflow/config.yaml
  tokenflow health --addr http://localhost:8000`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 构建 zap logger。toStderr 为 true 时 stdout 输出被重定向到 stderr。
func initLogger(cfg config.LogConfig, toStderr bool) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	if toStderr {
		outputs = redirectStdout(outputs)
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    !cfg.EnableCaller,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	stackLevel := zapcore.ErrorLevel
	if cfg.EnableStacktrace {
		stackLevel = zapcore.WarnLevel
	}

	logger, err := zapConfig.Build(zap.AddStacktrace(stackLevel))
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}

func redirectStdout(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "stdout" {
			p = "stderr"
		}
		out = append(out, p)
	}
	return out
}
