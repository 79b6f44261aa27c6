package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vsa/internal/repositories"
	"github.com/desertthunder/vsa/internal/shared"
	tu "github.com/desertthunder/vsa/internal/testing"
)

const wait = 2 * time.Second

func probeCommand(got *shared.Credential) *cli.Command {
	return &cli.Command{
		Name: "probe",
		Action: func(ctx context.Context, _ *cli.Command) error {
			*got, _ = shared.CredentialFrom(ctx)
			return nil
		},
	}
}

func memoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	runner *Runner
	dialer *tu.FakeDialer
	db     *sql.DB
	out    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv(shared.TokenEnv, "")

	config := shared.DefaultConfig()
	config.Session.ConnectTimeoutMS = 1000
	config.Session.ReconnectIntervalMS = 5
	config.Session.ReconnectAttempts = 1

	f := &fixture{dialer: &tu.FakeDialer{}, db: memoryDB(t), out: &bytes.Buffer{}}
	f.runner = NewRunner(RunnerOpts{
		Config: config,
		Dialer: f.dialer,
		DB:     f.db,
		Logger: log.New(io.Discard),
		Output: f.out,
	})
	return f
}

func (f *fixture) run(args ...string) error {
	return f.runner.app().Run(context.Background(), append([]string{"vsa"}, args...))
}

// serve plays the backend: it waits for the client to write a packet starting with prefix, then pushes events.
func (f *fixture) serve(t *testing.T, prefix string, events ...[2]string) {
	t.Helper()
	go func() {
		if !tu.Eventually(wait, func() bool { return f.dialer.Last() != nil }) {
			return
		}
		srv := f.dialer.Last()
		if !srv.WaitForWrites(prefix, 1, wait) {
			return
		}
		for _, ev := range events {
			srv.Event(ev[0], ev[1])
		}
	}()
}

const listPayload = `{"analyses": [
	{"id": "a1", "title": "Phone Review", "url": "https://youtu.be/a1", "status": "completed",
	 "created_at": "2025-03-01T10:00:00", "transcription": "The price is too high.",
	 "sentiment": {"message": {"price": {"sentiments": [{"sentiment": "negatywny", "score": 0.8, "sentence": "The price is too high."}]}}}},
	{"id": "a2", "title": "", "url": "https://youtu.be/a2", "status": "processing", "created_at": "2025-03-01T11:00:00"}
]}`

func TestAnalyze(t *testing.T) {
	t.Run("Streams Steps And Prints Result", func(t *testing.T) {
		f := newFixture(t)
		f.serve(t, `42["start_analysis"`,
			[2]string{"analysis_step", `{"analysis_id":"a9","step":{"step":"download","status":"in_progress","message":"Downloading","timestamp":null}}`},
			[2]string{"analysis_step", `{"analysis_id":"a9","step":{"step":"sentiment","status":"completed","message":"Sentiment done","timestamp":null}}`},
			[2]string{"analysis_complete", `{"analysis_id":"a9","title":"Laptop Review","transcription":"Great keyboard.","sentiment":{"message":{"keyboard":{"sentiments":[{"sentiment":"pozytywny","score":0.9,"sentence":"Great keyboard."}]}}}}`},
		)

		if err := f.run("--token", "tok-1", "analyze", "https://youtu.be/new"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := f.out.String()
		for _, want := range []string{
			"Analyzing https://youtu.be/new",
			"… download: Downloading\n",
			"✓ sentiment: Sentiment done\n",
			"Analysis: Laptop Review",
			"keyboard (1)",
			"Great keyboard.",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}

		start := f.dialer.Last().Writes()
		var sent string
		for _, w := range start {
			if strings.HasPrefix(w, `42["start_analysis"`) {
				sent = w
			}
		}
		if !strings.Contains(sent, `"model":"whisperpy-base"`) || !strings.Contains(sent, `"token":"tok-1"`) {
			t.Errorf("unexpected start command %s", sent)
		}

		detail, err := repositories.NewDetailRepository(f.db).Get(context.Background(), "a9")
		if err != nil {
			t.Fatalf("expected result to be cached, got %v", err)
		}
		if detail.URL != "https://youtu.be/new" {
			t.Errorf("expected cached url from the run, got %q", detail.URL)
		}
	})

	t.Run("Failure Exits With Error", func(t *testing.T) {
		f := newFixture(t)
		f.serve(t, `42["start_analysis"`,
			[2]string{"analysis_error", `{"analysis_id":"a9","error":"video unavailable"}`},
		)

		err := f.run("--token", "tok-1", "analyze", "https://youtu.be/gone")
		if !errors.Is(err, shared.ErrRun) {
			t.Fatalf("expected ErrRun, got %v", err)
		}
		if !strings.Contains(f.out.String(), "✗ error: video unavailable") {
			t.Errorf("expected failure step to be printed, got:\n%s", f.out.String())
		}
	})

	t.Run("Model Flag", func(t *testing.T) {
		f := newFixture(t)
		f.serve(t, `42["start_analysis"`,
			[2]string{"analysis_error", `{"error":"Invalid YouTube URL"}`},
		)

		err := f.run("--token", "tok-1", "analyze", "--model", "deepgram-nova-2", "not-a-url")
		if !errors.Is(err, shared.ErrRun) {
			t.Fatalf("expected ErrRun, got %v", err)
		}
		if f.dialer.Last().CountWrites(`42["start_analysis",{"url":"not-a-url","model":"deepgram-nova-2"`) != 1 {
			t.Errorf("expected model override in start command, got %v", f.dialer.Last().Writes())
		}
	})

	t.Run("Requires Credential", func(t *testing.T) {
		f := newFixture(t)

		err := f.run("analyze", "https://youtu.be/x")
		if !errors.Is(err, shared.ErrAuth) {
			t.Fatalf("expected ErrAuth, got %v", err)
		}
		if f.dialer.Dials() != 0 {
			t.Errorf("expected no dial without credential, got %d", f.dialer.Dials())
		}
	})

	t.Run("Requires Url", func(t *testing.T) {
		f := newFixture(t)

		if err := f.run("--token", "tok-1", "analyze"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Rejected Connection", func(t *testing.T) {
		f := newFixture(t)
		f.dialer.SetReject("Invalid or expired token")

		err := f.run("--token", "tok-1", "analyze", "https://youtu.be/x")
		if !errors.Is(err, shared.ErrAuth) {
			t.Errorf("expected ErrAuth from rejected connect, got %v", err)
		}
	})
}

func TestAnalyses(t *testing.T) {
	t.Run("List Caches Embedded Results", func(t *testing.T) {
		f := newFixture(t)
		f.serve(t, `42["get_analyses"`, [2]string{"analyses_list", listPayload})

		if err := f.run("--token", "tok-1", "analyses", "list"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := f.out.String()
		for _, want := range []string{"Analyses (2)", "✓ a1", "Phone Review", "… a2", "Untitled"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}

		f.out.Reset()
		if err := f.run("analyses", "show", "a1"); err != nil {
			t.Fatalf("show failed: %v", err)
		}
		if !strings.Contains(f.out.String(), "price (1)") {
			t.Errorf("expected cached breakdown, got:\n%s", f.out.String())
		}
	})

	t.Run("List JSON", func(t *testing.T) {
		f := newFixture(t)
		f.serve(t, `42["get_analyses"`, [2]string{"analyses_list", `{"analyses": []}`})

		if err := f.run("--token", "tok-1", "analyses", "list", "--json"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(f.out.String()) != "[]" {
			t.Errorf("expected empty array, got %q", f.out.String())
		}
	})

	t.Run("List Server Error", func(t *testing.T) {
		f := newFixture(t)
		f.serve(t, `42["get_analyses"`, [2]string{"error", `{"message":"Invalid or expired token"}`})

		err := f.run("--token", "tok-1", "analyses", "list")
		if !errors.Is(err, shared.ErrAPIRequest) || !strings.Contains(err.Error(), "Invalid or expired token") {
			t.Errorf("expected server error, got %v", err)
		}
	})

	t.Run("Show Missing", func(t *testing.T) {
		f := newFixture(t)

		err := f.run("analyses", "show", "nope")
		if !errors.Is(err, shared.ErrAnalysisNotFound) {
			t.Errorf("expected ErrAnalysisNotFound, got %v", err)
		}
		if err := f.run("analyses", "show"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Export And Cached", func(t *testing.T) {
		f := newFixture(t)
		f.serve(t, `42["get_analyses"`, [2]string{"analyses_list", listPayload})
		if err := f.run("--token", "tok-1", "analyses", "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}

		path := filepath.Join(t.TempDir(), "a1.md")
		f.out.Reset()
		if err := f.run("analyses", "export", "--format", "md", "--output", path, "a1"); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if !strings.Contains(f.out.String(), "Exported Phone Review") {
			t.Errorf("expected confirmation, got %q", f.out.String())
		}
		if content := tu.MustReadFile(t, path); !strings.Contains(content, "| price | 1 | 0% | 0% | 100% |") {
			t.Errorf("unexpected markdown:\n%s", content)
		}

		if err := f.run("analyses", "export", "--format", "xml", "a1"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}

		f.out.Reset()
		if err := f.run("analyses", "cached"); err != nil {
			t.Fatalf("cached failed: %v", err)
		}
		if !strings.Contains(f.out.String(), "Cached results (1)") || !strings.Contains(f.out.String(), "a1") {
			t.Errorf("unexpected cache listing:\n%s", f.out.String())
		}
	})
}

func TestAPICommands(t *testing.T) {
	var auth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`{"message":"Welcome to the sentiment API"}`))
		case "/api/v1/transcribe/process":
			w.Write([]byte(`{"id":"t1","title":"Bench Video","transcription":"ok"}`))
		case "/api/v1/sentiment/analyze/t1":
			w.Write([]byte(`{"message":{"price":{"sentiments":[{"sentiment":"neutralny"}]}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Not Found"}`))
		}
	}))
	defer server.Close()

	newAPIFixture := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.runner.config.Backend.URL = server.URL
		return f
	}

	t.Run("Get Uses Bearer Credential", func(t *testing.T) {
		f := newAPIFixture(t)

		if err := f.run("--token", "tok-1", "api", "get", "--json", "/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := auth.Load(); got != "Bearer tok-1" {
			t.Errorf("expected bearer header, got %v", got)
		}
		if strings.TrimSpace(f.out.String()) != `{"message":"Welcome to the sentiment API"}` {
			t.Errorf("unexpected output %q", f.out.String())
		}
	})

	t.Run("Get Not Found", func(t *testing.T) {
		f := newAPIFixture(t)

		err := f.run("api", "get", "/missing")
		if !errors.Is(err, shared.ErrAPIRequest) || !strings.Contains(err.Error(), "status 404") {
			t.Errorf("expected 404 API error, got %v", err)
		}
	})

	t.Run("Post Rejects Invalid JSON", func(t *testing.T) {
		f := newAPIFixture(t)

		err := f.run("api", "post", "--data", "{not json", "/api/v1/transcribe/process")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Post", func(t *testing.T) {
		f := newAPIFixture(t)

		if err := f.run("api", "post", "-d", `{"url":"https://youtu.be/x","model":"deepgram-nova-2"}`, "/api/v1/transcribe/process"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(f.out.String(), `"id": "t1"`) {
			t.Errorf("expected pretty JSON, got %q", f.out.String())
		}
	})

	t.Run("Bench JSON", func(t *testing.T) {
		f := newAPIFixture(t)

		if err := f.run("bench", "--json", "-n", "2", "--rate", "100", "https://youtu.be/x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var result struct {
			Model     string `json:"model"`
			Succeeded int    `json:"succeeded"`
			Failed    int    `json:"failed"`
			Samples   []struct {
				Iteration  int    `json:"iteration"`
				Title      string `json:"title"`
				Categories int    `json:"categories"`
			} `json:"samples"`
		}
		if err := json.Unmarshal(f.out.Bytes(), &result); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, f.out.String())
		}
		if result.Model != "deepgram-nova-2" || result.Succeeded != 2 || result.Failed != 0 {
			t.Errorf("unexpected result %+v", result)
		}
		if len(result.Samples) != 2 || result.Samples[0].Title != "Bench Video" || result.Samples[0].Categories != 1 {
			t.Errorf("unexpected samples %+v", result.Samples)
		}
	})

	t.Run("Bench Requires Url", func(t *testing.T) {
		f := newAPIFixture(t)

		if err := f.run("bench"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Status", func(t *testing.T) {
		f := newAPIFixture(t)
		f.serve(t, `42["get_analyses"`, [2]string{"analyses_list", listPayload})

		if err := f.run("--token", "tok-1", "status"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := f.out.String()
		for _, want := range []string{"✓ REST:   ok", "Welcome to the sentiment API", "✓ Events: connected", "2 analyses"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("Status Without Credential", func(t *testing.T) {
		f := newAPIFixture(t)

		err := f.run("status", "--json")
		if !errors.Is(err, shared.ErrAuth) {
			t.Fatalf("expected ErrAuth, got %v", err)
		}

		var report statusReport
		if jerr := json.Unmarshal(f.out.Bytes(), &report); jerr != nil {
			t.Fatalf("expected JSON report, got %v", jerr)
		}
		if !report.RESTOK || report.ChannelOK {
			t.Errorf("expected REST ok and channel down, got %+v", report)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("Config", func(t *testing.T) {
		f := newFixture(t)
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := f.run("setup", "config", "--output", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, path)
		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("expected a loadable config, got %v", err)
		}

		if err := f.run("setup", "config", "--output", path); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected existing file to be refused, got %v", err)
		}
	})

	t.Run("Database", func(t *testing.T) {
		f := newFixture(t)
		dir := filepath.Join(t.TempDir(), "data", "cache")
		f.runner.config.Database.Path = filepath.Join(dir, "vsa.db")

		if err := f.run("setup", "database"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertDirExists(t, dir)
		tu.AssertFileExists(t, f.runner.config.Database.Path)
	})
}
