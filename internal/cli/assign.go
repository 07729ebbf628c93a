package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/job"
)

// AssignOptions holds flags for the assign command.
type AssignOptions struct {
	*RootOptions
	GUID   string
	Status string
}

// NewAssignCommand creates the assign command.
func NewAssignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AssignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "assign <input-file-url>",
		Short: "Register a job assignment record",
		Long: `Register a job assignment for an input file.

This only creates the record a later notification reconciles against; it
does not start any external job.

Example:
  recon assign https://media.example.com/clip.mp4
  recon assign s3://bucket/clip.mp4 --guid 0192f0c1-... --status Queued`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.GUID, "guid", "", "assignment guid (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.Status, "status", string(job.StatusRunning), "initial status")

	return cmd
}

func runAssign(opts *AssignOptions, inputURL string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.setupLogging(cmd.ErrOrStderr())

	status, err := job.ParseStatus(opts.Status)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid status", err)
	}
	if status.IsTerminal() {
		return formatter.Fail(ExitCommandError, "invalid status", fmt.Errorf("%s is a final state", status))
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load config", err)
	}
	st, err := openStore(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	guid := opts.GUID
	if guid == "" {
		guid = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	a := &job.Assignment{
		ID:     job.AssignmentID(guid),
		Status: status,
		JobInput: job.ParameterBag{
			job.ParamInputFile: job.Locator{URL: inputURL},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := st.CreateAssignment(context.Background(), a); err != nil {
		return formatter.Fail(ExitCommandError, "failed to create assignment", err)
	}
	logger.Debug("job assignment created", "assignment", a.ID)

	return formatter.Success(a, func(w io.Writer) {
		fmt.Fprintln(w, a.ID)
	})
}
