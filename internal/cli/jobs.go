package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/payload"
)

// JobsCommand lists import jobs.
type JobsCommand struct {
	Status string
	Store  storeFlags

	out io.Writer
}

func NewJobsCommand() *JobsCommand {
	return &JobsCommand{out: os.Stdout}
}

func (cmd *JobsCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)

	fs.StringVar(&cmd.Status, "status", "", "Comma-separated statuses to show, e.g. uploaded,failed")
	cmd.Store.register(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s jobs [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "List import jobs, oldest first.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	_, err := cmd.statuses()
	return err
}

func (cmd *JobsCommand) statuses() ([]entities.JobStatus, error) {
	if cmd.Status == "" {
		return nil, nil
	}
	var out []entities.JobStatus
	for _, s := range strings.Split(cmd.Status, ",") {
		status := entities.JobStatus(strings.TrimSpace(s))
		if !status.Valid() {
			return nil, fmt.Errorf("invalid status %q", s)
		}
		out = append(out, status)
	}
	return out, nil
}

func (cmd *JobsCommand) Run() error {
	statuses, err := cmd.statuses()
	if err != nil {
		return err
	}
	ws, err := openWorkspace(cmd.Store, cmd.out)
	if err != nil {
		return err
	}
	defer ws.Close()

	list, err := ws.jobs.ListJobs(context.Background(), statuses...)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.out, "No jobs found")
		return nil
	}

	fmt.Fprintf(cmd.out, "%-6s %-24s %-6s %-11s %s\n", "ID", "RESOURCE", "FORMAT", "STATUS", "CREATED")
	for _, job := range list {
		fmt.Fprintf(cmd.out, "%-6d %-24s %-6s %-11s %s\n",
			job.ID, job.TableKey(), job.SourceFormat, job.Status, job.CreatedAt.Format("2006-01-02 15:04"))
		if job.FailureReason != "" {
			fmt.Fprintf(cmd.out, "       reason: %s\n", job.FailureReason)
		}
	}
	return nil
}

// LinesCommand shows the staged lines of one job.
type LinesCommand struct {
	JobID  uint
	Status string
	Store  storeFlags

	out io.Writer
}

func NewLinesCommand() *LinesCommand {
	return &LinesCommand{out: os.Stdout}
}

func (cmd *LinesCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("lines", flag.ExitOnError)

	fs.UintVar(&cmd.JobID, "job", 0, "Job whose lines to show (required)")
	fs.StringVar(&cmd.Status, "status", "", "Only lines in this status: import, ignore or imported")
	cmd.Store.register(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s lines -job <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show the staged lines of a job with their errors.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.JobID == 0 {
		return fmt.Errorf("required flag -job not provided")
	}
	if cmd.Status != "" && !entities.LineStatus(cmd.Status).Valid() {
		return fmt.Errorf("invalid status %q", cmd.Status)
	}
	return nil
}

func (cmd *LinesCommand) Run() error {
	ws, err := openWorkspace(cmd.Store, cmd.out)
	if err != nil {
		return err
	}
	defer ws.Close()

	var statuses []entities.LineStatus
	if cmd.Status != "" {
		statuses = append(statuses, entities.LineStatus(cmd.Status))
	}
	ctx := context.Background()
	if _, err := ws.jobs.GetJob(ctx, cmd.JobID); err != nil {
		return err
	}
	lines, err := ws.jobs.ListLines(ctx, cmd.JobID, statuses...)
	if err != nil {
		return fmt.Errorf("failed to list lines: %w", err)
	}

	for _, line := range lines {
		fmt.Fprintf(cmd.out, "line %d [%s]", line.LineNo, line.Status)
		if line.Errors != "" {
			fmt.Fprintf(cmd.out, " %s", line.Errors)
		}
		fmt.Fprintln(cmd.out)

		p, err := payload.Decode(line.Data)
		if err != nil {
			fmt.Fprintf(cmd.out, "    %s\n", err)
			continue
		}
		for _, key := range p.Keys() {
			fmt.Fprintf(cmd.out, "    %s = %q\n", key, p[key])
		}
	}
	fmt.Fprintf(cmd.out, "%d lines\n", len(lines))
	return nil
}
