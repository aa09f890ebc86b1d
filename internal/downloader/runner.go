package downloader

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"heliodata/pkg/archive"
	"heliodata/pkg/config"
	herrors "heliodata/pkg/errors"
	"heliodata/pkg/ledger"
	"heliodata/pkg/logger"
	"heliodata/pkg/metadata"
	"heliodata/pkg/ratelimit"
	"heliodata/pkg/retry"
	"heliodata/pkg/storage"
	"heliodata/pkg/timerange"
)

// Job is one sample of one product. Key and the storage directory are
// scoped by mission so several missions can share a root.
type Job struct {
	Key     string
	Product string
	Range   timerange.TimeRange
	Sample  time.Time
}

// Outcome is what happened to a job
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// JobResult represents the result of a single job
type JobResult struct {
	Job      Job
	Outcome  Outcome
	Error    error
	Duration time.Duration
	Size     int64
}

// Result summarizes a run
type Result struct {
	Planned  int
	Done     int
	Skipped  int
	Failed   int
	Bytes    int64
	Duration time.Duration
}

// ArtifactStore places a fetched file under the destination root
type ArtifactStore interface {
	Store(srcPath, product string, tr timerange.TimeRange, sample time.Time) (*storage.Artifact, error)
}

// Uploader copies a stored artifact elsewhere and returns its location
type Uploader interface {
	Upload(ctx context.Context, root, artifactPath string) (string, error)
}

// Reporter receives per-key progress
type Reporter interface {
	AddTotal(n int)
	Start(key string)
	Done(key string, size int64)
	Skip(key string)
	Fail(key string, err error)
}

type nopReporter struct{}

func (nopReporter) AddTotal(int)       {}
func (nopReporter) Start(string)       {}
func (nopReporter) Done(string, int64) {}
func (nopReporter) Skip(string)        {}
func (nopReporter) Fail(string, error) {}

// Runner walks the partitions of a span for one mission, fetching every
// sample the ledger does not already hold. Jobs run one at a time.
type Runner struct {
	cfg      *config.Config
	mission  string
	products []string

	fetcher  archive.Fetcher
	store    ArtifactStore
	ledger   *ledger.Ledger
	limiter  ratelimit.Limiter
	retry    *retry.Config
	uploader Uploader
	reporter Reporter
	logger   logger.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithLimiter overrides the limiter built from the rate_limit section
func WithLimiter(l ratelimit.Limiter) Option {
	return func(r *Runner) { r.limiter = l }
}

// WithRetry overrides the retry policy built from the retry section
func WithRetry(c *retry.Config) Option {
	return func(r *Runner) { r.retry = c }
}

// WithUploader mirrors every stored artifact through u
func WithUploader(u Uploader) Option {
	return func(r *Runner) { r.uploader = u }
}

// WithReporter sets the progress sink
func WithReporter(rep Reporter) Option {
	return func(r *Runner) { r.reporter = rep }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner for mission and products
func NewRunner(
	cfg *config.Config,
	mission string,
	products []string,
	fetcher archive.Fetcher,
	store ArtifactStore,
	led *ledger.Ledger,
	opts ...Option,
) (*Runner, error) {
	if cfg == nil || fetcher == nil || store == nil || led == nil {
		return nil, herrors.New(herrors.ErrorTypeConfig, "runner needs config, fetcher, store and ledger")
	}
	if mission == "" {
		return nil, herrors.New(herrors.ErrorTypeConfig, "runner needs a mission name")
	}
	if len(products) == 0 {
		return nil, herrors.New(herrors.ErrorTypeConfig, "no products to download for %s", mission)
	}

	r := &Runner{
		cfg:      cfg,
		mission:  mission,
		products: products,
		fetcher:  fetcher,
		store:    store,
		ledger:   led,
		reporter: nopReporter{},
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.limiter == nil {
		r.limiter = ratelimit.New(cfg.RateLimit)
	}
	if r.retry == nil {
		r.retry = retry.FromSettings(cfg.Retry, r.logger)
	}
	r.logger = r.logger.WithField("mission", mission)
	return r, nil
}

// Plan partitions the configured span and expands every range into jobs,
// ordered by time and then product. It touches neither network nor disk.
func (r *Runner) Plan() ([]Job, error) {
	start, err := r.cfg.StartTime()
	if err != nil {
		return nil, err
	}
	end, err := r.cfg.EndTime()
	if err != nil {
		return nil, err
	}
	g, err := timerange.ParseGranularity(r.cfg.Download.Interval)
	if err != nil {
		return nil, herrors.InvalidRange("%v", err)
	}

	ranges, err := timerange.Partition(start, end, g)
	if err != nil {
		return nil, err
	}

	var jobs []Job
	for _, tr := range ranges {
		samples, err := timerange.Samples(tr, r.cfg.Download.Cadence)
		if err != nil {
			return nil, herrors.InvalidRange("%v", err)
		}
		for _, s := range samples {
			for _, p := range r.products {
				jobs = append(jobs, Job{
					Key:     timerange.SampleKey(r.scoped(p), s),
					Product: p,
					Range:   tr,
					Sample:  s,
				})
			}
		}
	}
	return jobs, nil
}

// Run executes the plan. Per-job failures are recorded in the ledger and
// do not stop the run; config errors, ledger write failures and
// cancellation do. On cancellation the in-flight key is left pending.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	jobs, err := r.Plan()
	if err != nil {
		return nil, err
	}

	res := &Result{Planned: len(jobs)}
	r.reporter.AddTotal(len(jobs))
	r.logger.InfoWithFields("Starting download", map[string]interface{}{
		"jobs":     len(jobs),
		"products": r.products,
		"root":     r.ledger.Root(),
	})

	var current string
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		if rk := job.Range.Key(); rk != current {
			current = rk
			r.logger.DebugWithFields("Entering range", map[string]interface{}{
				"range": rk,
				"span":  job.Range.String(),
			})
		}

		jr, err := r.processJob(ctx, job)
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		switch jr.Outcome {
		case OutcomeDone:
			res.Done++
			res.Bytes += jr.Size
		case OutcomeSkipped:
			res.Skipped++
		case OutcomeFailed:
			res.Failed++
		}
	}

	res.Duration = time.Since(start)
	r.logger.InfoWithFields("Download finished", map[string]interface{}{
		"done":     res.Done,
		"skipped":  res.Skipped,
		"failed":   res.Failed,
		"bytes":    res.Bytes,
		"duration": res.Duration.String(),
	})
	return res, nil
}

// processJob handles a single job. The returned error is fatal to the run;
// per-job failures are reported in the JobResult.
func (r *Runner) processJob(ctx context.Context, job Job) (JobResult, error) {
	started := time.Now()
	result := JobResult{Job: job}
	log := r.logger.WithField("key", job.Key)

	if r.shouldSkip(job.Key) {
		r.reporter.Skip(job.Key)
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	if err := r.ledger.MarkPending(job.Key); err != nil {
		return result, fmt.Errorf("ledger: %w", err)
	}
	r.reporter.Start(job.Key)

	artifact, err := r.fetchAndStore(ctx, job)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		// a misconfigured mission fails every key the same way
		if herrors.TypeOf(err) == herrors.ErrorTypeConfig {
			return result, err
		}

		kind := herrors.KindOf(err)
		if merr := r.ledger.MarkFailed(job.Key, err.Error(), kind); merr != nil {
			return result, fmt.Errorf("ledger: %w", merr)
		}

		fields := map[string]interface{}{"kind": string(kind), "error": err.Error()}
		if stderrors.Is(err, herrors.ErrNotAvailable) {
			log.DebugWithFields("Sample not available", fields)
		} else {
			log.WarnWithFields("Sample failed", fields)
		}

		r.reporter.Fail(job.Key, err)
		result.Outcome = OutcomeFailed
		result.Error = err
		result.Duration = time.Since(started)
		return result, nil
	}

	if err := r.ledger.MarkDone(job.Key, r.relative(artifact.Path)); err != nil {
		return result, fmt.Errorf("ledger: %w", err)
	}

	r.reporter.Done(job.Key, artifact.Size)
	result.Outcome = OutcomeDone
	result.Size = artifact.Size
	result.Duration = time.Since(started)

	log.DebugWithFields("Sample stored", map[string]interface{}{
		"path":     artifact.Path,
		"size":     artifact.Size,
		"duration": result.Duration.String(),
	})
	return result, nil
}

// shouldSkip reports whether the ledger already settles key
func (r *Runner) shouldSkip(key string) bool {
	rec, ok := r.ledger.Status(key)
	if !ok {
		return false
	}
	switch rec.Status {
	case ledger.StatusDone:
		return true
	case ledger.StatusFailed:
		return rec.Kind == herrors.KindPermanent && !r.cfg.Download.RetryPermanent
	default:
		return false
	}
}

// fetchAndStore fetches with retry, places the artifact, then writes its
// sidecar and mirrors it when configured.
func (r *Runner) fetchAndStore(ctx context.Context, job Job) (*storage.Artifact, error) {
	req := archive.Request{
		Mission:  r.mission,
		Product:  job.Product,
		Time:     job.Sample,
		Range:    job.Range,
		Margin:   r.cfg.Download.Margin,
		Identity: r.cfg.Archive.Identity,
	}

	tmpPath, err := retry.DoWithResult(ctx, r.retry, func() (string, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return r.fetcher.Fetch(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	artifact, err := r.store.Store(tmpPath, r.scoped(job.Product), job.Range, job.Sample)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	var mirrorURI string
	if r.uploader != nil {
		mirrorURI, err = r.uploader.Upload(ctx, r.ledger.Root(), artifact.Path)
		if err != nil {
			return nil, err
		}
	}

	if r.cfg.Storage.WriteMetadata {
		meta := &metadata.ArtifactMetadata{
			Key:          job.Key,
			Mission:      r.mission,
			Product:      job.Product,
			SampleTime:   job.Sample.UTC(),
			RangeStart:   job.Range.Start.UTC(),
			RangeEnd:     job.Range.End.UTC(),
			DownloadedAt: time.Now().UTC(),
			FileName:     filepath.Base(artifact.Path),
			FileSize:     artifact.Size,
			SHA256:       artifact.SHA256,
			Decompressed: artifact.Decompressed,
			Source:       artifact.Source,
			MirrorURI:    mirrorURI,
		}
		if err := meta.Save(artifact.Path); err != nil {
			r.logger.WarnWithFields("Failed to write metadata", map[string]interface{}{
				"path":  artifact.Path,
				"error": err.Error(),
			})
		}
	}

	return artifact, nil
}

// scoped prefixes product with the mission, giving "mission/product"
func (r *Runner) scoped(product string) string {
	return r.mission + "/" + product
}

// relative returns path relative to the ledger root when possible
func (r *Runner) relative(path string) string {
	rel, err := filepath.Rel(r.ledger.Root(), path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
