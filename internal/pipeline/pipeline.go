package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ufwinspector/internal/aggregate"
	"ufwinspector/internal/classify"
	"ufwinspector/internal/input"
	"ufwinspector/internal/ipinfo"
	"ufwinspector/internal/logger"
	"ufwinspector/internal/metrics"
	"ufwinspector/internal/parser/ufw"
	"ufwinspector/internal/rank"
	"ufwinspector/internal/resolve"
	"ufwinspector/internal/rules"
	"ufwinspector/pkg/models"
)

// ErrNoInput is returned when the source produced no lines and reported an
// error. It is the only error Run returns.
var ErrNoInput = errors.New("no input could be read")

const ispConcurrency = 4

// Options controls one analysis run.
type Options struct {
	GroupByEventType bool
	Workers          int
	ChunkSize        int
	RunTimeout       time.Duration
	// Limit caps records per bucket; zero keeps all.
	Limit int

	Resolve                  bool
	ResolutionTimeout        time.Duration
	MaxConcurrentResolutions int

	ISPLookup bool
}

// Pipeline turns raw UFW log lines into a ranked summary. A Pipeline holds
// no per-run state and may be run repeatedly.
type Pipeline struct {
	opts        Options
	parser      *ufw.Parser
	backend     resolve.Backend
	isp         *ipinfo.Config
	engine      rules.Engine
	metricsPath string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParser replaces the default line parser.
func WithParser(p *ufw.Parser) Option {
	return func(pl *Pipeline) { pl.parser = p }
}

// WithResolverBackend sets the reverse lookup backend.
func WithResolverBackend(b resolve.Backend) Option {
	return func(pl *Pipeline) { pl.backend = b }
}

// WithISP enables ISP lookups against the configured ipinfo endpoint.
func WithISP(cfg ipinfo.Config) Option {
	return func(pl *Pipeline) { pl.isp = &cfg }
}

// WithRules tags events with matching rule names.
func WithRules(engine rules.Engine) Option {
	return func(pl *Pipeline) { pl.engine = engine }
}

// WithMetricsTextfile writes run metrics to path after every run.
func WithMetricsTextfile(path string) Option {
	return func(pl *Pipeline) { pl.metricsPath = path }
}

// New creates a pipeline.
func New(opts Options, options ...Option) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 2048
	}
	p := &Pipeline{opts: opts}
	for _, o := range options {
		o(p)
	}
	if p.parser == nil {
		p.parser = ufw.NewParser()
	}
	if p.engine == nil {
		p.engine = &rules.NoopEngine{}
	}
	if p.backend == nil && opts.Resolve {
		p.backend = resolve.SystemBackend("")
	}
	return p
}

// run holds the caches and counters of one Run call.
type run struct {
	id         string
	log        *zap.SugaredLogger
	classifier *classify.Classifier
	resolver   *resolve.Resolver
	metrics    *metrics.Metrics
	pending    sync.WaitGroup
}

// Run analyzes every line of src. Cancellation of ctx, or the run timeout,
// stops the run early; the partial summary is returned with
// Stats.Canceled set and a nil error.
func (p *Pipeline) Run(ctx context.Context, src input.Source) (*models.Summary, error) {
	start := time.Now()
	if p.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RunTimeout)
		defer cancel()
	}

	r := &run{id: uuid.NewString(), metrics: metrics.New()}
	r.log = logger.With("run_id", r.id)

	lines, err := src.Lines(ctx)
	if err != nil {
		if len(lines) == 0 && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoInput, src.Name(), err)
		}
		r.log.Warnf("Partial input from %s: %v", src.Name(), err)
	}
	r.log.Infof("Analyzing %d lines from %s", len(lines), src.Name())

	if p.opts.Resolve && p.backend != nil {
		r.resolver = resolve.New(p.backend, resolve.Config{
			Timeout:       p.opts.ResolutionTimeout,
			MaxConcurrent: p.opts.MaxConcurrentResolutions,
		})
		r.classifier = classify.New(classify.WithFirstPublicHook(func(addr string) {
			r.pending.Add(1)
			go func() {
				defer r.pending.Done()
				r.metrics.ObserveResolution(r.resolver.Resolve(ctx, addr).Status)
			}()
		}))
	} else {
		r.classifier = classify.New()
	}

	agg, stats := p.process(ctx, r, lines)

	// Lookups started during parsing finish or time out here.
	r.pending.Wait()

	addresses := agg.Addresses()
	resolutions := make(map[string]models.Resolution, len(addresses))
	for _, addr := range addresses {
		res := models.Resolution{Status: models.ResolutionSkipped}
		if r.resolver != nil {
			if cached, ok := r.resolver.Lookup(addr); ok {
				res = cached
			}
		}
		if res.Status.Failed() {
			stats.ResolutionFailures++
		}
		resolutions[addr] = res
	}
	isps := p.lookupISPs(ctx, r, resolutions)

	records := agg.Records()
	for _, rec := range records {
		res := resolutions[rec.Address]
		rec.DomainName = res.Name
		rec.Resolution = res.Status
		rec.ISP = isps[rec.Address]
	}
	stats.PublicAddresses = len(addresses)
	stats.Canceled = ctx.Err() != nil

	summary := &models.Summary{
		RunID:   r.id,
		Source:  src.Name(),
		Grouped: p.opts.GroupByEventType,
		Buckets: rank.Present(records, rank.Options{GroupByEventType: p.opts.GroupByEventType, Limit: p.opts.Limit}),
		Stats:   stats,
	}

	r.metrics.ObserveStats(stats)
	r.metrics.RunDuration.Set(time.Since(start).Seconds())
	if p.metricsPath != "" {
		if err := r.metrics.WriteTextfile(p.metricsPath); err != nil {
			r.log.Warnf("Failed to write metrics: %v", err)
		}
	}

	cs := r.classifier.Stats()
	r.log.Infof("Run finished: lines=%d events=%d skipped=%d public=%d resolution_failures=%d classifier_hits=%d canceled=%t elapsed=%s",
		stats.TotalLines,
		stats.ParsedEvents,
		stats.SkippedLines,
		stats.PublicAddresses,
		stats.ResolutionFailures,
		cs.Hits,
		stats.Canceled,
		time.Since(start).Round(time.Millisecond),
	)
	return summary, nil
}

// process parses lines in chunks across the worker pool. Each worker owns an
// aggregator shard; shards are merged once all workers finish.
func (p *Pipeline) process(ctx context.Context, r *run, lines []string) (*aggregate.Aggregator, models.Stats) {
	workers := p.opts.Workers
	shards := make([]*aggregate.Aggregator, workers)
	shardStats := make([]models.Stats, workers)
	chunks := make(chan []string)

	var g errgroup.Group
	g.Go(func() error {
		defer close(chunks)
		for start := 0; start < len(lines); start += p.opts.ChunkSize {
			if ctx.Err() != nil {
				return nil
			}
			end := min(start+p.opts.ChunkSize, len(lines))
			select {
			case chunks <- lines[start:end]:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		shards[i] = aggregate.New(p.opts.GroupByEventType)
		g.Go(func() error {
			for chunk := range chunks {
				for _, line := range chunk {
					p.processLine(r, line, shards[i], &shardStats[i])
				}
			}
			return nil
		})
	}
	g.Wait()

	total := aggregate.New(p.opts.GroupByEventType)
	var stats models.Stats
	for i := range shards {
		total.Merge(shards[i])
		s := shardStats[i]
		stats.TotalLines += s.TotalLines
		stats.ParsedEvents += s.ParsedEvents
		stats.SkippedLines += s.SkippedLines
		stats.IndeterminateAddresses += s.IndeterminateAddresses
		stats.PrivateAddressHits += s.PrivateAddressHits
	}
	return total, stats
}

func (p *Pipeline) processLine(r *run, line string, agg *aggregate.Aggregator, stats *models.Stats) {
	ev, err := p.parser.Parse(line)
	if errors.Is(err, ufw.ErrEmptyLine) {
		return
	}
	stats.TotalLines++
	if err != nil {
		stats.SkippedLines++
		r.log.Debugf("Skipping line: %v", err)
		return
	}
	stats.ParsedEvents++
	r.metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()

	class := r.classifier.ClassifyEvent(ev)
	stats.IndeterminateAddresses += class.Indeterminate
	stats.PrivateAddressHits += class.Private
	if class.Indeterminate > 0 {
		r.log.Debugf("Indeterminate address in line: %q", line)
	}
	if len(class.Contributions) == 0 {
		return
	}

	tags := p.engine.Apply(ev)
	r.metrics.RuleMatchesTotal.Add(float64(len(tags)))
	agg.Add(ev, class.Contributions, tags...)
}

// lookupISPs queries the provider of every address that has no domain name.
func (p *Pipeline) lookupISPs(ctx context.Context, r *run, resolutions map[string]models.Resolution) map[string]string {
	out := make(map[string]string)
	if p.isp == nil || !p.opts.ISPLookup || ctx.Err() != nil {
		return out
	}
	client, err := ipinfo.NewClient(*p.isp)
	if err != nil {
		r.log.Warnf("ISP lookup disabled: %v", err)
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ispConcurrency)
	for addr, res := range resolutions {
		if res.Name != "" {
			continue
		}
		g.Go(func() error {
			isp := client.ISP(gctx, addr)
			r.metrics.ISPLookupsTotal.Inc()
			if isp != "" {
				mu.Lock()
				out[addr] = isp
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return out
}
