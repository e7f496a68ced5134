package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sahana/importer/internal/importers"
)

// PassCommand runs one pipeline phase over every eligible job, or over a
// single job when -job is given. It backs both "process" and "import".
type PassCommand struct {
	Phase string
	JobID uint
	Store storeFlags

	out io.Writer
}

// NewProcessCommand maps and stages uploaded jobs.
func NewProcessCommand() *PassCommand {
	return &PassCommand{Phase: "process", out: os.Stdout}
}

// NewImportCommand commits processed jobs into their target tables.
func NewImportCommand() *PassCommand {
	return &PassCommand{Phase: "import", out: os.Stdout}
}

func (cmd *PassCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet(cmd.Phase, flag.ExitOnError)

	cmd.Store.register(fs)
	fs.UintVar(&cmd.JobID, "job", 0, "Run only this job")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s [options]\n\n", os.Args[0], cmd.Phase)
		if cmd.Phase == "process" {
			fmt.Fprintf(os.Stderr, "Map and stage every job in uploaded or processing, oldest first.\n\n")
		} else {
			fmt.Fprintf(os.Stderr, "Commit the staged lines of every processed job, oldest first.\n\n")
		}
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

func (cmd *PassCommand) Run() error {
	ws, err := openWorkspace(cmd.Store, cmd.out)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := context.Background()

	if cmd.JobID != 0 {
		var outcome *importers.JobOutcome
		if cmd.Phase == "process" {
			outcome, err = ws.pipeline.ProcessJob(ctx, cmd.JobID)
		} else {
			outcome, err = ws.pipeline.ImportJob(ctx, cmd.JobID)
		}
		if outcome != nil {
			printOutcome(cmd.out, *outcome)
		}
		return err
	}

	var result *importers.PassResult
	if cmd.Phase == "process" {
		result, err = ws.pipeline.Process(ctx)
	} else {
		result, err = ws.pipeline.Import(ctx)
	}
	if result != nil {
		fmt.Fprintf(cmd.out, "%s pass: %d jobs\n", cmd.Phase, len(result.Jobs))
		for _, o := range result.Jobs {
			printOutcome(cmd.out, o)
		}
	}
	return err
}
