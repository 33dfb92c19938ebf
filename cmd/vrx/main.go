package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	apperrors "github.com/zsiec/vrx/internal/errors"
	"github.com/zsiec/vrx/pkg/version"
)

var analyzeFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to a YAML config `file`",
		EnvVars: []string{"VRX_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "cap",
		Aliases: []string{"c"},
		Usage:   "capture `file` to analyze, pcap or pcapng",
	},
	&cli.StringFlag{
		Name:    "group",
		Aliases: []string{"g"},
		Usage:   "destination multicast group of the stream, any when unset",
	},
	&cli.IntFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "destination UDP port of the stream, any when unset",
	},
	&cli.Int64Flag{
		Name:  "leap-seconds",
		Usage: "TAI minus UTC offset in seconds",
	},
	&cli.StringFlag{
		Name:  "active-ratio",
		Usage: "active lines over total lines, e.g. 1080/1125",
	},
	&cli.StringFlag{
		Name:  "read-offset-ratio",
		Usage: "delay of the first read as a fraction of the frame period, e.g. 43/1125",
	},
	&cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "occupancy trace `file`, defaults to the capture file with .txt appended",
	},
	&cli.StringFlag{
		Name:  "csv",
		Usage: "also write a CSV trace with capture times and underruns to `file`",
	},
	&cli.StringFlag{
		Name:  "summary",
		Usage: "summary format: text, json or none",
	},
	&cli.BoolFlag{
		Name:  "no-color",
		Usage: "disable colors in the text summary",
	},
	&cli.StringFlag{
		Name:  "metrics-file",
		Usage: "write run metrics in Prometheus text format to `file`",
	},
	&cli.BoolFlag{
		Name:  "store",
		Usage: "archive the run report in Redis",
	},
	&cli.StringFlag{
		Name:  "redis-addr",
		Usage: "Redis address for the report store",
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "log level: trace, debug, info, warn or error",
	},
	&cli.StringFlag{
		Name:  "log-format",
		Usage: "log format: text or json",
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := &command{stdout: stdout, stderr: stderr}
	err := newApp(cmd).RunContext(ctx, args)

	log := cmd.log
	if log == nil {
		log = logrus.New()
		log.SetOutput(stderr)
	}
	if err != nil && !apperrors.IsAppError(err) {
		// flag parsing and usage errors
		err = apperrors.WrapConfigError(err, "invalid command line")
	}
	return apperrors.NewErrorHandler(log).Handle(err)
}

func newApp(cmd *command) *cli.App {
	return &cli.App{
		Name:        version.Name,
		Usage:       "SMPTE ST 2110-21 virtual receive buffer analyzer",
		Description: "run without subcommands to analyze a capture",
		ArgsUsage:   "[capture file]",
		Flags:       analyzeFlags,
		Action:      cmd.analyze,
		Writer:      cmd.stdout,
		ErrWriter:   cmd.stderr,
		// errors are mapped to exit codes by run
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(c *cli.Context) error {
					_, err := io.WriteString(cmd.stdout, version.GetInfo().String()+"\n")
					return err
				},
			},
			{
				Name:      "check",
				Usage:     "check that a capture can be analyzed and the outputs written",
				ArgsUsage: "[capture file]",
				Action:    cmd.check,
			},
			{
				Name:  "reports",
				Usage: "inspect run reports archived in Redis",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list the most recent reports",
						Action: cmd.listReports,
						Flags: []cli.Flag{
							&cli.Int64Flag{
								Name:  "limit",
								Usage: "maximum number of reports",
								Value: 20,
							},
						},
					},
					{
						Name:      "show",
						Usage:     "print one report as JSON",
						ArgsUsage: "<report id>",
						Action:    cmd.showReport,
					},
					{
						Name:      "delete",
						Usage:     "delete one report",
						ArgsUsage: "<report id>",
						Action:    cmd.deleteReport,
					},
				},
			},
		},
		Version:         version.Version,
		HideHelpCommand: true,
	}
}
