package main

import (
	"fmt"
	"os"

	"github.com/sahana/importer/internal/cli"
	"github.com/sahana/importer/internal/config"
	"github.com/sahana/importer/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

// command is the shape shared by every CLI subcommand.
type command interface {
	ParseFlags(args []string) error
	Run() error
}

func main() {
	// If no arguments or "serve" command, run the HTTP server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		cfg := config.NewConfig()
		entrypoint.Run(cfg, Version)
		return
	}

	name := os.Args[1]
	args := os.Args[2:]

	var cmd command
	switch name {
	case "process":
		cmd = cli.NewProcessCommand()
	case "import":
		cmd = cli.NewImportCommand()
	case "create-job":
		cmd = cli.NewCreateJobCommand()
	case "jobs":
		cmd = cli.NewJobsCommand()
	case "lines":
		cmd = cli.NewLinesCommand()
	case "csv2xml":
		cmd = cli.NewCSVToXMLCommand()
	case "transform":
		cmd = cli.NewTransformCommand()
	case "version":
		fmt.Printf("importer %s (%s)\n", Version, Commit)
		return
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.ParseFlags(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve        Start the HTTP server (default if no command given)\n")
	fmt.Fprintf(os.Stderr, "  create-job   Register a source file as an import job\n")
	fmt.Fprintf(os.Stderr, "  process      Map and stage uploaded jobs\n")
	fmt.Fprintf(os.Stderr, "  import       Commit processed jobs into their target tables\n")
	fmt.Fprintf(os.Stderr, "  jobs         List import jobs\n")
	fmt.Fprintf(os.Stderr, "  lines        Show the staged lines of a job\n")
	fmt.Fprintf(os.Stderr, "  csv2xml      Convert a CSV file to tabular XML\n")
	fmt.Fprintf(os.Stderr, "  transform    Apply a resource stylesheet to a source file\n")
	fmt.Fprintf(os.Stderr, "  version      Print the version\n")
	fmt.Fprintf(os.Stderr, "\nUse '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
