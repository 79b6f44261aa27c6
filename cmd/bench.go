package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vsa/internal/shared"
	"github.com/desertthunder/vsa/internal/tasks"
)

type benchSampleJSON struct {
	Iteration       int     `json:"iteration"`
	TranscriptionID string  `json:"transcription_id,omitempty"`
	Title           string  `json:"title,omitempty"`
	TranscribeMS    int64   `json:"transcribe_ms"`
	AnalyzeMS       int64   `json:"analyze_ms"`
	Categories      int     `json:"categories"`
	Error           *string `json:"error,omitempty"`
}

type benchResultJSON struct {
	URL              string            `json:"url"`
	Model            string            `json:"model"`
	Succeeded        int               `json:"succeeded"`
	Failed           int               `json:"failed"`
	ElapsedMS        int64             `json:"elapsed_ms"`
	MeanTranscribeMS int64             `json:"mean_transcribe_ms"`
	MeanAnalyzeMS    int64             `json:"mean_analyze_ms"`
	MaxTranscribeMS  int64             `json:"max_transcribe_ms"`
	MaxAnalyzeMS     int64             `json:"max_analyze_ms"`
	Samples          []benchSampleJSON `json:"samples"`
}

// Bench times transcription and sentiment analysis through the REST API.
func (r *Runner) Bench(ctx context.Context, cmd *cli.Command) error {
	opts := tasks.BenchOpts{
		URL:        strings.TrimSpace(cmd.StringArg("url")),
		Model:      cmd.String("model"),
		Iterations: cmd.Int("iterations"),
		Workers:    cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
	}
	if opts.URL == "" {
		return fmt.Errorf("%w: video url", shared.ErrMissingArgument)
	}
	if opts.Workers == 0 {
		opts.Workers = r.config.Bench.Workers
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = r.config.Bench.RateLimit
	}
	if !cmd.IsSet("model") && r.config.Bench.Model != "" {
		opts.Model = r.config.Bench.Model
	}

	asJSON := cmd.Bool("json")
	progress := make(chan tasks.ProgressUpdate, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Debug("bench progress", "phase", update.Phase, "step", update.Step, "total", update.Total)
			if !asJSON {
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	r.logger.Info("starting bench", "url", opts.URL, "model", opts.Model, "iterations", opts.Iterations)
	result, err := tasks.NewBench(r.apiService(ctx)).Run(ctx, progress, opts)
	close(progress)
	<-done

	if result != nil {
		if asJSON {
			if werr := r.writeJSON(benchJSON(result), true); werr != nil {
				return werr
			}
		} else {
			r.writeBenchSummary(result)
		}
	}
	if err != nil {
		return fmt.Errorf("bench stopped: %w", err)
	}
	if result.Succeeded == 0 && result.Failed > 0 {
		return fmt.Errorf("%w: every iteration failed", shared.ErrAPIRequest)
	}
	return nil
}

func (r *Runner) writeBenchSummary(res *tasks.BenchResult) {
	r.writePlain("\n")
	r.writePlainHeader("Bench Summary")
	r.writePlain("URL:         %s\n", res.URL)
	r.writePlain("Model:       %s\n", res.Model)
	r.writePlain("Succeeded:   %d\n", res.Succeeded)
	r.writePlain("Failed:      %d\n", res.Failed)
	r.writePlain("Elapsed:     %s\n", res.Elapsed.Round(time.Millisecond))
	if res.Succeeded > 0 {
		r.writePlain("Transcribe:  mean %s, max %s\n", res.MeanTranscribe.Round(time.Millisecond), res.MaxTranscribe.Round(time.Millisecond))
		r.writePlain("Analyze:     mean %s, max %s\n", res.MeanAnalyze.Round(time.Millisecond), res.MaxAnalyze.Round(time.Millisecond))
	}
}

func benchJSON(res *tasks.BenchResult) benchResultJSON {
	out := benchResultJSON{
		URL:              res.URL,
		Model:            res.Model,
		Succeeded:        res.Succeeded,
		Failed:           res.Failed,
		ElapsedMS:        res.Elapsed.Milliseconds(),
		MeanTranscribeMS: res.MeanTranscribe.Milliseconds(),
		MeanAnalyzeMS:    res.MeanAnalyze.Milliseconds(),
		MaxTranscribeMS:  res.MaxTranscribe.Milliseconds(),
		MaxAnalyzeMS:     res.MaxAnalyze.Milliseconds(),
		Samples:          []benchSampleJSON{},
	}

	for _, s := range res.Samples {
		sample := benchSampleJSON{
			Iteration:       s.Iteration,
			TranscriptionID: s.TranscriptionID,
			Title:           s.Title,
			TranscribeMS:    s.Transcribe.Milliseconds(),
			AnalyzeMS:       s.Analyze.Milliseconds(),
			Categories:      s.Categories,
		}
		if s.Err != nil {
			msg := s.Err.Error()
			sample.Error = &msg
		}
		out.Samples = append(out.Samples, sample)
	}
	return out
}
