package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/vsa/internal/services"
	"github.com/desertthunder/vsa/internal/shared"
)

// BenchOpts contains configuration for a benchmark run.
type BenchOpts struct {
	URL        string  // Video URL every iteration submits
	Model      string  // Transcription model (default: deepgram-nova-2)
	Iterations int     // Number of transcribe + analyze rounds (default: 1)
	Workers    int     // Concurrent workers (default: 1, max: 10)
	RateLimit  float64 // Requests per second across workers (default: 1)
}

// DefaultBenchModel is the transcription model the harness measures unless told otherwise.
const DefaultBenchModel = "deepgram-nova-2"

// BenchSample is the outcome of one iteration.
type BenchSample struct {
	Iteration       int
	TranscriptionID string
	Title           string
	Transcribe      time.Duration
	Analyze         time.Duration
	Categories      int
	Err             error
}

// Total is the end-to-end time of the iteration.
func (s BenchSample) Total() time.Duration {
	return s.Transcribe + s.Analyze
}

// BenchResult aggregates every sample of a run.
type BenchResult struct {
	URL            string
	Model          string
	Samples        []BenchSample // Ordered by iteration
	Succeeded      int
	Failed         int
	Elapsed        time.Duration
	MeanTranscribe time.Duration
	MeanAnalyze    time.Duration
	MaxTranscribe  time.Duration
	MaxAnalyze     time.Duration
}

// Bench drives the two-stage pipeline through an [services.Analyzer].
type Bench struct {
	analyzer services.Analyzer
	now      func() time.Time
}

// NewBench creates a new Bench with the provided analyzer.
func NewBench(analyzer services.Analyzer) *Bench {
	return &Bench{analyzer: analyzer, now: time.Now}
}

func (o BenchOpts) withDefaults() BenchOpts {
	if o.Model == "" {
		o.Model = DefaultBenchModel
	}
	if o.Iterations <= 0 {
		o.Iterations = 1
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Workers > 10 {
		o.Workers = 10
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 1
	}
	return o
}

// Run executes opts.Iterations rounds and returns the aggregated timings.
//
// The result is returned alongside the error when the run is cut short, holding whatever samples finished.
func (b *Bench) Run(ctx context.Context, progress chan<- ProgressUpdate, opts BenchOpts) (*BenchResult, error) {
	if b.analyzer == nil {
		return nil, fmt.Errorf("%w: analyzer not initialized", shared.ErrServiceUnavailable)
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: video url", shared.ErrMissingArgument)
	}
	opts = opts.withDefaults()

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	samples := make([]BenchSample, opts.Iterations)
	started := b.now()

	var (
		mu        sync.Mutex
		completed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i := range opts.Iterations {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			sample := b.iteration(gctx, limiter, progress, i+1, opts)
			samples[i] = sample

			mu.Lock()
			completed++
			sendProgress(progress, sampleUpdate(completed, opts.Iterations, sample))
			mu.Unlock()

			if errors.Is(sample.Err, shared.ErrAuth) {
				return sample.Err
			}
			return nil
		})
	}

	err := g.Wait()
	result := summarize(samples, opts)
	result.Elapsed = b.now().Sub(started)

	if err != nil {
		return result, err
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

func (b *Bench) iteration(ctx context.Context, limiter *rate.Limiter, progress chan<- ProgressUpdate, n int, opts BenchOpts) BenchSample {
	sample := BenchSample{Iteration: n}

	if err := limiter.Wait(ctx); err != nil {
		sample.Err = err
		return sample
	}

	sendProgress(progress, transcribeUpdate(n, opts.Iterations, opts.URL))
	start := b.now()
	tr, err := b.analyzer.Transcribe(ctx, opts.URL, opts.Model)
	sample.Transcribe = b.now().Sub(start)
	if err != nil {
		sample.Err = fmt.Errorf("transcribe: %w", err)
		return sample
	}
	sample.TranscriptionID = tr.ID
	sample.Title = tr.Title

	if err := limiter.Wait(ctx); err != nil {
		sample.Err = err
		return sample
	}

	sendProgress(progress, analyzeUpdate(n, opts.Iterations, tr.ID, sample.Transcribe))
	start = b.now()
	doc, err := b.analyzer.AnalyzeSentiment(ctx, tr.ID)
	sample.Analyze = b.now().Sub(start)
	if err != nil {
		sample.Err = fmt.Errorf("analyze: %w", err)
		return sample
	}
	sample.Categories = len(doc.Categories())
	return sample
}

// summarize folds samples into a result; iterations that never ran are dropped.
func summarize(samples []BenchSample, opts BenchOpts) *BenchResult {
	result := &BenchResult{URL: opts.URL, Model: opts.Model, Samples: make([]BenchSample, 0, len(samples))}

	var sumTranscribe, sumAnalyze time.Duration
	for _, s := range samples {
		if s.Iteration == 0 {
			continue
		}
		result.Samples = append(result.Samples, s)

		if s.Err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
		sumTranscribe += s.Transcribe
		sumAnalyze += s.Analyze
		result.MaxTranscribe = max(result.MaxTranscribe, s.Transcribe)
		result.MaxAnalyze = max(result.MaxAnalyze, s.Analyze)
	}

	if result.Succeeded > 0 {
		result.MeanTranscribe = sumTranscribe / time.Duration(result.Succeeded)
		result.MeanAnalyze = sumAnalyze / time.Duration(result.Succeeded)
	}
	return result
}
