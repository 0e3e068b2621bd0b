// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// serveCommand runs the HTTP server that owns the login flow and talks to Spotify
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the findtune API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides config)",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Session store: memory, database or redis (overrides config)",
			},
		},
		Action: r.Serve,
	}
}

// loginCommand handles the browser login
func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in with Spotify through the findtune server",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser login to finish",
				Value: 5 * time.Minute,
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the login URL instead of opening a browser",
			},
		},
		Action: r.Login,
	}
}

// logoutCommand destroys the saved session
func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Log out and forget the saved session",
		Action: r.Logout,
	}
}

// statusCommand shows the logged in user and the player
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the logged in user, devices and current track",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// seedsCommand finds tracks to seed playback with
func seedsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "seeds",
		Usage: "Find seed songs",
		Commands: []*cli.Command{
			{
				Name:  "search",
				Usage: "Search tracks and print their IDs",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "query",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.SeedsSearch,
			},
			{
				Name:  "recommend",
				Usage: "Print one recommendation for the given seeds",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "seed",
						Aliases:  []string{"s"},
						Usage:    "Seed track ID or URI (up to 5)",
						Required: true,
					},
				},
				Action: r.SeedsRecommend,
			},
		},
	}
}

func playerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "seed",
			Aliases: []string{"s"},
			Usage:   "Seed track ID or URI (up to 5)",
		},
		&cli.StringFlag{
			Name:  "device",
			Usage: "Name of the device to play on (overrides config)",
		},
		&cli.BoolFlag{
			Name:  "auto-advance",
			Usage: "Skip to the next song after liking one",
		},
	}
}

// playCommand runs headless continuous playback
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "play",
		Usage:  "Play recommendations for the given seeds until interrupted",
		Flags:  playerFlags(),
		Action: r.Play,
	}
}

// tuiCommand returns the top-level TUI command for interactive playback.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive player",
		Flags: append(playerFlags(), &cli.StringFlag{
			Name:  "log-file",
			Usage: "File the TUI writes logs to",
			Value: "./tmp/findtune-tui.log",
		}),
		Action: r.TUI,
	}
}

// likedCommand manages the songs liked while listening
func likedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "liked",
		Usage: "Show, export or forget liked songs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List liked songs",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.LikedList,
			},
			{
				Name:  "export",
				Usage: "Export liked songs to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, md or txt",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "File to write (defaults to liked_songs.<format>)",
					},
				},
				Action: r.LikedExport,
			},
			{
				Name:  "remove",
				Usage: "Forget a liked song",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.LikedRemove,
			},
		},
	}
}

// setupCommand handles setup operations for database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config.toml from the built-in template",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path to write the configuration file to",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}
