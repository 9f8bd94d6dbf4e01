package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"ufwinspector/config"
	"ufwinspector/internal/input"
	inputfile "ufwinspector/internal/input/file"
	inputredis "ufwinspector/internal/input/redis"
	"ufwinspector/internal/ipinfo"
	"ufwinspector/internal/logger"
	"ufwinspector/internal/output/console"
	"ufwinspector/internal/pipeline"
	"ufwinspector/internal/resolve"
	"ufwinspector/internal/rules"
)

var version = "dev"

type analyzeCmd struct {
	Files       []string      `arg:"positional" help:"log files to read, - for stdin (default from config)"`
	GroupByType bool          `arg:"-g,--group-by-type" help:"group results by event type"`
	TSV         bool          `arg:"--tsv" help:"tab-separated output"`
	NoResolve   bool          `arg:"--no-resolve" help:"skip reverse DNS lookups"`
	NoISP       bool          `arg:"--no-isp" help:"skip ISP lookups"`
	Timeout     time.Duration `arg:"--timeout" help:"per-lookup DNS timeout"`
	RunTimeout  time.Duration `arg:"--run-timeout" help:"abort the run after this long and print partial results"`
	RedisKey    string        `arg:"--redis-key" help:"read lines from this Redis list instead of files"`
	MetricsFile string        `arg:"--metrics-file" help:"write Prometheus metrics to this textfile"`
	Limit       *int          `arg:"--limit" help:"maximum entries per group, 0 for all"`
}

type configShowCmd struct{}

type configInitCmd struct {
	Path  string `arg:"positional" help:"where to write the config (default ~/.config/ufwinspector/config.yml)"`
	Force bool   `arg:"-f,--force" help:"overwrite an existing file"`
}

type configCmd struct {
	Show *configShowCmd `arg:"subcommand:show" help:"print the effective configuration"`
	Init *configInitCmd `arg:"subcommand:init" help:"write a default configuration file"`
}

type versionCmd struct{}

type cliArgs struct {
	Config  string      `arg:"-c,--config,env:UFWINSPECTOR_CONFIG" help:"config file path"`
	Debug   bool        `arg:"-d,--debug" help:"enable debug logging"`
	Analyze *analyzeCmd `arg:"subcommand:analyze" help:"analyze UFW logs and display results"`
	Cfg     *configCmd  `arg:"subcommand:config" help:"configuration commands"`
	Version *versionCmd `arg:"subcommand:version" help:"print the version"`
}

func (cliArgs) Description() string {
	return "ufwinspector - UFW log analyzer for security monitoring"
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	var args cliArgs
	parser, err := arg.NewParser(arg.Config{Program: "ufwinspector"}, &args)
	if err != nil {
		fmt.Fprintf(stderr, "failed to build argument parser: %v\n", err)
		return 2
	}
	if err := parser.Parse(argv); err != nil {
		if errors.Is(err, arg.ErrHelp) {
			parser.WriteHelpForSubcommand(stdout, parser.SubcommandNames()...)
			return 0
		}
		parser.WriteUsageForSubcommand(stderr, parser.SubcommandNames()...)
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	switch {
	case args.Version != nil:
		fmt.Fprintf(stdout, "ufwinspector %s\n", version)
		return 0
	case args.Cfg != nil:
		return runConfig(args, stdout, stderr)
	case args.Analyze != nil:
		return runAnalyze(args, stdout, stderr)
	default:
		parser.WriteHelp(stdout)
		return 2
	}
}

func loadConfig(configArg string, stderr io.Writer) (*config.Config, string, bool) {
	configPath, err := config.FindConfigFile(configArg)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return nil, "", false
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return nil, configPath, false
	}
	return cfg, configPath, true
}

func runConfig(args cliArgs, stdout, stderr io.Writer) int {
	switch {
	case args.Cfg.Init != nil:
		path := args.Cfg.Init.Path
		if path == "" {
			path = config.UserConfigPath()
		}
		if path == "" {
			fmt.Fprintln(stderr, "cannot determine user config directory; pass a path")
			return 1
		}
		if _, err := os.Stat(path); err == nil && !args.Cfg.Init.Force {
			fmt.Fprintf(stderr, "config file already exists: %s (use --force to overwrite)\n", path)
			return 1
		}
		if err := config.Save(config.Default(), path); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Configuration written to %s\n", path)
		return 0
	default:
		cfg, configPath, ok := loadConfig(args.Config, stderr)
		if !ok {
			return 1
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "failed to render config: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "# %s\n%s", configPath, data)
		return 0
	}
}

// applyFlags lets command-line flags override config values.
func applyFlags(cfg *config.Config, a *analyzeCmd) {
	c := &cfg.UFWInspector
	if len(a.Files) > 0 {
		c.Input.Files = a.Files
	}
	if a.RedisKey != "" {
		c.Input.Redis.Key = a.RedisKey
	}
	if a.GroupByType {
		c.Analysis.GroupByEventType = true
	}
	if a.RunTimeout > 0 {
		c.Analysis.RunTimeout = a.RunTimeout
	}
	if a.Limit != nil {
		c.Analysis.MaxEntries = max(*a.Limit, 0)
	}
	if a.NoResolve {
		c.Resolver.Enabled = false
	}
	if a.Timeout > 0 {
		c.Resolver.Timeout = a.Timeout
	}
	if a.NoISP {
		c.ISP.Enabled = false
	}
	if a.MetricsFile != "" {
		c.Metrics.Textfile = a.MetricsFile
	}
}

func runAnalyze(args cliArgs, stdout, stderr io.Writer) int {
	cfg, configPath, ok := loadConfig(args.Config, stderr)
	if !ok {
		return 1
	}
	applyFlags(cfg, args.Analyze)
	c := cfg.UFWInspector

	level := c.Logging.Level
	if args.Debug {
		level = "debug"
	}
	if err := logger.Init(c.Logging.Enabled, level, c.Logging.File, c.Logging.Console); err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()
	logger.Debugf("Config loaded from: %s", configPath)

	var src input.Source
	if c.Input.Redis.Key != "" {
		rs, err := inputredis.NewSource(inputredis.Config{
			Addr:     c.Input.Redis.Addr,
			Password: c.Input.Redis.Password,
			DB:       c.Input.Redis.DB,
			Key:      c.Input.Redis.Key,
			PageSize: c.Input.Redis.PageSize,
		})
		if err != nil {
			fmt.Fprintf(stderr, "failed to create Redis source: %v\n", err)
			return 1
		}
		defer rs.Close()
		src = rs
	} else {
		src = inputfile.New(c.Input.Files...)
	}

	options := []pipeline.Option{pipeline.WithMetricsTextfile(c.Metrics.Textfile)}
	if c.Resolver.Enabled {
		options = append(options, pipeline.WithResolverBackend(resolve.SystemBackend(c.Resolver.Server)))
	}
	if c.ISP.Enabled {
		options = append(options, pipeline.WithISP(ipinfo.Config{
			URL:           c.ISP.URL,
			Timeout:       c.ISP.Timeout,
			RatePerSecond: c.ISP.RatePerSecond,
			Burst:         c.ISP.Burst,
			Headers:       c.ISP.Headers,
		}))
	}
	if c.Rules.Enabled {
		if strings.TrimSpace(c.Rules.Path) == "" {
			logger.Warnf("Rules enabled but rules.path is empty; rule tagging disabled")
		} else {
			engine, stats, err := rules.NewSigmaEngine(c.Rules.Path)
			if err != nil {
				fmt.Fprintf(stderr, "failed to load Sigma rules: %v\n", err)
				return 1
			}
			logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
				stats.Loaded,
				stats.SkippedComplex,
				stats.SkippedDatasource,
				stats.SkippedInvalid,
				stats.TotalFiles,
			)
			if stats.Loaded == 0 {
				logger.Warnf("No compatible Sigma rules loaded; rule tagging is effectively disabled")
			}
			options = append(options, pipeline.WithRules(engine))
		}
	}

	pipe := pipeline.New(pipeline.Options{
		GroupByEventType:         c.Analysis.GroupByEventType,
		Workers:                  c.Analysis.Workers,
		ChunkSize:                c.Analysis.ChunkSize,
		RunTimeout:               c.Analysis.RunTimeout,
		Limit:                    c.Analysis.MaxEntries,
		Resolve:                  c.Resolver.Enabled,
		ResolutionTimeout:        c.Resolver.Timeout,
		MaxConcurrentResolutions: c.Resolver.MaxConcurrent,
		ISPLookup:                c.ISP.Enabled,
	}, options...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := pipe.Run(ctx, src)
	if err != nil {
		logger.Errorf("Analysis failed: %v", err)
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	format := console.FormatTable
	if args.Analyze.TSV {
		format = console.FormatTSV
	}
	if err := console.NewRenderer(stdout, format).Render(summary); err != nil {
		fmt.Fprintf(stderr, "failed to render results: %v\n", err)
		return 1
	}
	if summary.Stats.Canceled {
		return 130
	}
	return 0
}
