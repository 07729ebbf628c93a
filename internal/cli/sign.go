package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/artifact"
	"github.com/roach88/recon/internal/job"
)

// SignOptions holds flags for the sign command.
type SignOptions struct {
	*RootOptions
	TTL time.Duration
}

// NewSignCommand creates the sign command.
func NewSignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sign <artifact-key-or-url>",
		Short: "Print a time-limited read URL for an artifact",
		Long: `Print a signed URL granting read access to a stored artifact.

Requires artifacts.signing_secret to be configured, so the server can
verify the signature.

Example:
  recon sign results/2024-03-01T12-00-00/clip_1.json --ttl 15m`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "validity (default: artifacts.url_ttl)")

	return cmd
}

type signedURL struct {
	Key     string    `json:"key"`
	URL     string    `json:"url"`
	Expires time.Time `json:"expires"`
}

func runSign(opts *SignOptions, arg string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.setupLogging(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load config", err)
	}
	if cfg.Artifacts.SigningSecret == "" {
		return formatter.Fail(ExitCommandError, "cannot sign", errors.New("artifacts.signing_secret is not configured"))
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = cfg.Artifacts.URLTTL
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	signer, err := newSigner(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, "cannot sign", err)
	}
	arts := artifact.NewDBStore(st, cfg.Server.PublicURL, signer)

	key := arg
	if strings.Contains(arg, "://") {
		key, err = arts.Key(job.Locator{URL: arg})
		if err != nil {
			return formatter.Fail(ExitCommandError, "cannot sign", err)
		}
	}

	expires := time.Now().Add(ttl)
	signed, err := arts.SignedReadURL(context.Background(), job.Locator{URL: arts.LocatorURL(key)}, ttl)
	if err != nil {
		return formatter.Fail(ExitCommandError, "cannot sign", err)
	}

	out := signedURL{Key: key, URL: signed, Expires: expires.UTC().Truncate(time.Second)}
	return formatter.Success(out, func(w io.Writer) {
		fmt.Fprintln(w, out.URL)
	})
}
