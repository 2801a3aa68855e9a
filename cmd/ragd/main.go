// Command ragd runs the retrieval-augmented generation service.
//
// Usage:
//
//	ragd serve --config config.yaml
//	ragd ingest ./docs --config config.yaml
//	ragd query "What is the capital of France?" --config config.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/pratap1297/rag-new-sub000/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server."`
	Ingest   IngestCmd   `cmd:"" help:"Ingest a file or directory into the knowledge base."`
	Query    QueryCmd    `cmd:"" help:"Run a one-shot query against the knowledge base."`
	Compact  CompactCmd  `cmd:"" help:"Physically remove soft-deleted vectors from the index."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:""`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("ragd version %s\n", version)
	return nil
}

// initLogging applies CLI overrides over the config file's logging section.
func initLogging(cli *CLI, level, format, file string) (func(), error) {
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		format = cli.LogFormat
	}
	if cli.LogFile != "" {
		file = cli.LogFile
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if file != "" {
		f, closeFn, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, err
		}
		output = f
		cleanup = closeFn
	}

	logger.Init(parsed, output, format)
	return cleanup, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("ragd"),
		kong.Description("Retrieval-augmented generation service"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
