package main

import (
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vsa/internal/formatter"
	"github.com/desertthunder/vsa/internal/tasks"
)

const version = "0.1.0"

// app builds the root command with the global flags every subcommand shares.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "vsa",
		Usage:   "Analyze the sentiment of product review videos",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Bearer token (overrides VSA_TOKEN and the config file)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

// setupCommand handles setup operations for the database and configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize the detail cache and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config.toml populated with defaults",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Where to write the file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// analysesCommand handles browsing the backend's analysis registry and the local detail cache.
func analysesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "analyses",
		Aliases: []string{"ls"},
		Usage:   "Browse previous analyses",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List analyses known to the backend",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AnalysesList,
			},
			{
				Name:  "show",
				Usage: "Show the cached result of an analysis",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AnalysesShow,
			},
			{
				Name:  "export",
				Usage: "Export the cached result of an analysis",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (json, csv, markdown, txt)",
						Value:   string(formatter.JSON),
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (default: {id}.{ext})",
					},
				},
				Action: r.AnalysesExport,
			},
			{
				Name:   "cached",
				Usage:  "List results stored in the local cache",
				Action: r.AnalysesCached,
			},
		},
	}
}

// analyzeCommand runs one analysis headlessly and streams its steps.
func analyzeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Analyze a video and print progress as it arrives",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Transcription model (default from config)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Result format (json, csv, markdown, txt)",
				Value:   string(formatter.Text),
			},
		},
		Action: r.Analyze,
	}
}

// benchCommand measures the REST transcription and analysis endpoints.
func benchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Time transcription and sentiment analysis over the REST API",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Transcription model",
				Value:   tasks.DefaultBenchModel,
			},
			&cli.IntFlag{
				Name:    "iterations",
				Aliases: []string{"n"},
				Usage:   "Number of transcribe and analyze cycles",
				Value:   1,
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent workers (default from config)",
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Requests per second across all workers (default from config)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Bench,
	}
}

// apiCommand handles direct API access operations
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct access to the backend REST API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Make a GET request to the backend",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Make a POST request to the backend",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON data to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// statusCommand checks the backend over both transports.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check backend health and event channel connectivity",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// tuiCommand returns the top-level TUI command for interactive analysis.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive terminal UI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Transcription model (default from config)",
			},
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Serve the live session state at the configured status address",
			},
			&cli.StringFlag{
				Name:  "status-addr",
				Usage: "Serve the live session state over HTTP at this address (e.g. 127.0.0.1:3000)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the UI owns the terminal",
				Value: "./tmp/vsa-tui.log",
			},
		},
		Action: r.TUI,
	}
}
