package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/external"
	"github.com/roach88/recon/internal/job"
	"github.com/roach88/recon/internal/lock"
	"github.com/roach88/recon/internal/reconcile"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	File       string
	Assignment string
	Kind       string
	Status     string
	JobID      string
	Reason     string

	// Client allows overriding the results gateway client (for testing).
	Client external.Client

	// Holders allows overriding the lock holder generator (for testing).
	Holders lock.HolderGenerator
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return newReconcileCommand(&ReconcileOptions{RootOptions: rootOpts})
}

func newReconcileCommand(opts *ReconcileOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Handle one completion notification",
		Long: `Handle a single completion notification in this process.

The notification is read from a JSON file (--file, "-" for stdin) or built
from flags. The assignment is locked, results are collected on success,
and the assignment is moved to its final state.

Example:
  recon reconcile --assignment abc --kind labelDetection --status SUCCEEDED --job-id 1a2b
  recon reconcile --file notification.json --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", `notification JSON file ("-" for stdin)`)
	cmd.Flags().StringVar(&opts.Assignment, "assignment", "", "job assignment guid or id")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "job kind (name, start API, or profile)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status reported by the external job")
	cmd.Flags().StringVar(&opts.JobID, "job-id", "", "external job id")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "failure reason reported by the external job")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.setupLogging(cmd.ErrOrStderr())

	n, err := opts.notification(cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid notification", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load config", err)
	}

	var appOpts []appOption
	if opts.Client != nil {
		appOpts = append(appOpts, withExternalClient(opts.Client))
	}
	if opts.Holders != nil {
		appOpts = append(appOpts, withHolderGenerator(opts.Holders))
	}
	a, err := buildApp(cfg, logger, appOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to start", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := a.engine.Handle(ctx, n)
	switch {
	case err == nil:
	case errors.Is(err, job.ErrInvalidNotification), errors.Is(err, job.ErrNotFound):
		return formatter.Fail(ExitCommandError, "reconcile failed", err)
	default:
		return formatter.Fail(ExitFailure, "reconcile failed", err)
	}

	if err := formatter.Success(res, func(w io.Writer) { writeResult(w, res) }); err != nil {
		return err
	}
	if res.CommitErr != nil {
		return WrapExitError(ExitFailure, "failed to record failure", res.CommitErr)
	}
	return nil
}

// notification reads the notification from --file or builds it from flags.
func (o *ReconcileOptions) notification(stdin io.Reader) (job.Notification, error) {
	var n job.Notification
	if o.File != "" {
		var r io.Reader = stdin
		if o.File != "-" {
			f, err := os.Open(o.File)
			if err != nil {
				return n, err
			}
			defer f.Close()
			r = f
		}
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return n, fmt.Errorf("%w: %v", job.ErrInvalidNotification, err)
		}
		return n, nil
	}

	if o.Assignment == "" {
		return n, fmt.Errorf("%w: --file or --assignment is required", job.ErrInvalidNotification)
	}
	kind, err := job.ParseKind(o.Kind)
	if err != nil {
		return n, fmt.Errorf("%w: %v", job.ErrInvalidNotification, err)
	}
	n = job.Notification{
		JobAssignmentID: assignmentID(o.Assignment),
		JobKind:         kind,
		ReportedStatus:  o.Status,
		ExternalJobID:   o.JobID,
		FailureReason:   o.Reason,
	}
	// Typos in flags are reported, not recorded on the assignment.
	return n, n.Validate()
}

// assignmentID accepts a bare guid or a full assignment id.
func assignmentID(arg string) string {
	if strings.HasPrefix(arg, job.AssignmentPathPrefix) {
		return arg
	}
	return job.AssignmentID(arg)
}

func writeResult(w io.Writer, res reconcile.Result) {
	fmt.Fprintf(w, "Assignment: %s\n", res.AssignmentID)
	fmt.Fprintf(w, "Outcome:    %s\n", res.Outcome)
	fmt.Fprintf(w, "Status:     %s\n", res.Status)
	if res.Problem != nil {
		fmt.Fprintf(w, "Problem:    %s\n", res.Problem.Error())
	}
	if res.CommitErr != nil {
		fmt.Fprintf(w, "Warning:    failure not recorded: %v\n", res.CommitErr)
	}
	for _, a := range res.Artifacts {
		fmt.Fprintf(w, "  [%d] %s\n", a.Sequence, a.Locator.URL)
	}
}
