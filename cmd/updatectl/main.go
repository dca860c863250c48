// Command updatectl is the CLI surface over C1-C7: it builds signed
// update packages, applies them, and exposes the individual
// primitives (hash/sign/create-patch/apply-patch) for scripting and
// CI.
//
// Structured after the teacher's own cmd/main.go: a single
// github.com/minio/cli app, a fixed set of registered commands, and
// console logging enabled before any command runs; file logging is
// added only when --log-file is set.
package main

import (
	"fmt"
	"os"

	"github.com/minio/cli"

	"github.com/deltapkg/deltapkg/internal/logger"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var globalFlags = []cli.Flag{
	cli.BoolFlag{
		Name:  "quiet",
		Usage: "disable informational output",
	},
	cli.StringFlag{
		Name:  "log-file",
		Usage: "append JSON logs to this file in addition to stderr",
	},
}

var updatectlHelpTemplate = `NAME:
  {{.Name}} - {{.Usage}}

USAGE:
  {{.HelpName}} {{if .VisibleFlags}}[FLAGS] {{end}}COMMAND{{if .VisibleFlags}}{{end}} [ARGS...]

COMMANDS:
  {{range .VisibleCommands}}{{join .Names ", "}}{{ "\t" }}{{.Usage}}
  {{end}}{{if .VisibleFlags}}
FLAGS:
  {{range .VisibleFlags}}{{.}}
  {{end}}{{end}}
VERSION:
  ` + Version + `
`

func enableLoggers(c *cli.Context) {
	level := "info"
	if c.GlobalBool("quiet") {
		level = "error"
	}
	logger.EnableConsole(logger.ConsoleConfig{Enable: true, Level: level})
	if f := c.GlobalString("log-file"); f != "" {
		logger.EnableFile(logger.FileConfig{Enable: true, Filename: f, Level: "info"})
	}
}

func registerApp() *cli.App {
	app := cli.NewApp()
	app.Name = "updatectl"
	app.Author = "deltapkg"
	app.Version = Version
	app.Usage = "build and apply signed delta update packages"
	app.Flags = globalFlags
	app.Commands = commands
	app.CustomAppHelpTemplate = updatectlHelpTemplate
	app.Before = func(c *cli.Context) error {
		enableLoggers(c)
		return nil
	}
	app.CommandNotFound = func(ctx *cli.Context, command string) {
		fmt.Fprintf(os.Stderr, "%q is not an updatectl command. See 'updatectl --help'.\n", command)
		os.Exit(1)
	}
	return app
}

func main() {
	app := registerApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
