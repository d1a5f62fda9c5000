package config

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Resolved is everything main needs after flag parsing and INI loading:
// the merged Config plus the path it was loaded from, kept for log lines.
type Resolved struct {
	Config     Config
	ConfigPath string
}

// App builds the daemon's command-line surface. action receives the fully
// resolved, validated configuration. If action returns an error that already
// carries a cli.ExitCoder (main's run() uses cli.Exit to signal the
// daemonize-refusal and database-connect-failure exit codes from spec.md
// §6), that code is passed through unchanged; any other error exits with
// code 2, the uniform configuration/startup error code, matching the way
// the teacher wires its own urfave/cli command actions.
func App(action func(*cli.Context, Resolved) error) *cli.App {
	return &cli.App{
		Name:  "rteval-parserd",
		Usage: "ingest rteval XML submission reports into the database",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "daemon",
				Aliases: []string{"d"},
				Usage:   "detach and run in the background",
			},
			&cli.StringFlag{
				Name:    "log",
				Aliases: []string{"l"},
				Usage:   "log destination: stderr:, stdout:, syslog:[facility], or a file path",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"L"},
				Usage:   "log verbosity: emerg, alert, crit, err, warning, notice, info, debug",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"f"},
				Value:   "/etc/rteval.conf",
				Usage:   "path to the INI configuration file",
			},
			&cli.IntFlag{
				Name:    "threads",
				Aliases: []string{"t"},
				Value:   0,
				Usage:   "number of parse worker threads (default 4)",
			},
		},
		Action: func(c *cli.Context) error {
			resolved, err := resolve(c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("op=config.resolve: %v", err), 2)
			}
			if err := action(c, resolved); err != nil {
				if coder, ok := err.(cli.ExitCoder); ok {
					return coder
				}
				return cli.Exit(err.Error(), 2)
			}
			return nil
		},
	}
}

// resolve applies Defaults, then the INI file at the --config path, then
// any command-line overrides, in that precedence order, and validates the
// result.
func resolve(c *cli.Context) (Resolved, error) {
	path := c.String("config")

	cfg, err := LoadFile(path, Defaults())
	if err != nil {
		return Resolved{}, err
	}

	if v := c.String("log"); v != "" {
		cfg.LogDest = v
	} else if cfg.LogDest == "" {
		cfg.LogDest = "stderr:"
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if c.Bool("daemon") {
		cfg.Daemon = true
	}
	if v := c.Int("threads"); v != 0 {
		cfg.Threads = v
	} else if cfg.Threads == 0 {
		cfg.Threads = 4
	}

	if err := cfg.Validate(); err != nil {
		return Resolved{}, err
	}
	return Resolved{Config: cfg, ConfigPath: path}, nil
}
