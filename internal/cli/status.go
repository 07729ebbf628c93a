package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/job"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Filter []string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status [assignment]",
		Short: "Show job assignment records",
		Long: `Show one job assignment, or list all of them.

Example:
  recon status 0192f0c1-...
  recon status --filter Running --filter Queued`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Filter, "filter", nil, "only list assignments in these statuses")

	return cmd
}

func runStatus(opts *StatusOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.setupLogging(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load config", err)
	}
	st, err := openStore(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := context.Background()

	if len(args) == 1 {
		a, err := st.GetAssignment(ctx, assignmentID(args[0]))
		if err != nil {
			return formatter.Fail(ExitCommandError, "failed to read assignment", err)
		}
		return formatter.Success(a, func(w io.Writer) { writeAssignment(w, a) })
	}

	var statuses []job.Status
	for _, f := range opts.Filter {
		s, err := job.ParseStatus(f)
		if err != nil {
			return formatter.Fail(ExitCommandError, "invalid filter", err)
		}
		statuses = append(statuses, s)
	}
	list, err := st.ListAssignments(ctx, statuses...)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to list assignments", err)
	}
	return formatter.Success(list, func(w io.Writer) {
		if len(list) == 0 {
			fmt.Fprintln(w, "No job assignments.")
			return
		}
		for _, a := range list {
			fmt.Fprintf(w, "%-10s %s\n", a.Status, a.ID)
		}
	})
}

func writeAssignment(w io.Writer, a *job.Assignment) {
	fmt.Fprintf(w, "ID:       %s\n", a.ID)
	fmt.Fprintf(w, "Status:   %s\n", a.Status)
	if in, err := a.InputFile(); err == nil {
		fmt.Fprintf(w, "Input:    %s\n", in.URL)
	}
	fmt.Fprintf(w, "Created:  %s\n", a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(w, "Modified: %s\n", a.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	if a.Error != nil {
		fmt.Fprintf(w, "Error:    %s (%s)\n", a.Error.Error(), a.Error.Type)
	}
	outputs := a.OutputFiles()
	if len(outputs) > 0 {
		fmt.Fprintln(w, "Outputs:")
		for i, loc := range outputs {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, loc.URL)
		}
	}
}
