// Command pgsim boots the kernel paging code against an emulated machine
// described by a TOML file and inspects the resulting page tables.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

var (
	debug     = flag.Bool("debug", false, "print the diagnostics emitted by the kernel packages.")
	logFormat = flag.String("log-format", "text", "log format: text or json.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&setupCmd{}, "")
	subcommands.Register(&translateCmd{}, "")
	subcommands.Register(&dumpCmd{}, "")

	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}
	if *logFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	os.Exit(int(subcommands.Execute(context.Background(), logrus.NewEntry(log))))
}
