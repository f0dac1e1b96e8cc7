package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/geocoder89/securedata/internal/client"
)

// errSubmitFailed marks a submission the API rejected; the form state is
// still printed and the process exits 1.
var errSubmitFailed = errors.New("submission failed")

type cliOptions struct {
	apiURL  string
	timeout time.Duration
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and maps the outcome to an exit code: 0 on success,
// 1 when the submission failed, 2 on usage errors.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errSubmitFailed):
		return 1
	default:
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		fmt.Fprintf(root.ErrOrStderr(), "run '%s --help' for usage\n", root.CommandPath())
		return 2
	}
}

// newRootCmd builds a fresh command tree so tests never share flag state.
func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "securedata-cli",
		Short: "Submit securedata forms from the terminal",
		Long: `securedata-cli drives the same four forms as the web frontend:
storing an encrypted user, decrypting with a passphrase, sending a signed
email and verifying a signature. Results are printed as JSON on stdout.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errors.New("a command is required")
		},
	}

	root.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("SECUREDATA_API_URL", "http://localhost:8080"), "base URL of the securedata API")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")

	root.AddCommand(
		newAddUserCmd(opts),
		newDecryptCmd(opts),
		newSendEmailCmd(opts),
		newVerifyCmd(opts),
	)

	return root
}

func newAddUserCmd(opts *cliOptions) *cobra.Command {
	var name, password string

	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Encrypt a name under a password and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, opts, client.FormAddUser, func(v *client.View) func(context.Context) error {
				v.SetAddUser(name, password)
				return v.SubmitAddUser
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name to encrypt")
	cmd.Flags().StringVar(&password, "password", "", "password protecting the name")

	return cmd
}

func newDecryptCmd(opts *cliOptions) *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Try a passphrase against every stored user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, opts, client.FormDecrypt, func(v *client.View) func(context.Context) error {
				v.SetDecrypt(passphrase)
				return v.SubmitDecrypt
			})
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase to try against every row")

	return cmd
}

func newSendEmailCmd(opts *cliOptions) *cobra.Command {
	var to, message string

	cmd := &cobra.Command{
		Use:   "send-email",
		Short: "Sign a message and email it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, opts, client.FormEmail, func(v *client.View) func(context.Context) error {
				v.SetEmail(to, message)
				return v.SubmitEmail
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&message, "message", "", "message to sign and send")

	return cmd
}

func newVerifyCmd(opts *cliOptions) *cobra.Command {
	var message, signature string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a message against its signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, opts, client.FormVerify, func(v *client.View) func(context.Context) error {
				v.SetVerify(message, signature)
				return v.SubmitVerify
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "message as received")
	cmd.Flags().StringVar(&signature, "signature", "", "hex signature as received")

	return cmd
}

// submit fills one form, sends it and prints the resulting state.
func submit(cmd *cobra.Command, opts *cliOptions, form client.Form, fill func(*client.View) func(context.Context) error) error {
	// diagnostics on stderr, results on stdout
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

	view := client.NewView(client.New(opts.apiURL, client.WithTimeout(opts.timeout)), log)

	submitErr := fill(view)(cmd.Context())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(output(form, view.State())); err != nil {
		return fmt.Errorf("%w: %v", errSubmitFailed, err)
	}

	if submitErr != nil {
		return errSubmitFailed
	}
	return nil
}

func output(form client.Form, s client.State) any {
	switch form {
	case client.FormAddUser, client.FormDecrypt:
		return struct {
			Users any    `json:"users"`
			Error string `json:"error,omitempty"`
		}{s.Users, s.Errors[form]}

	case client.FormEmail:
		return struct {
			EmailDetails any `json:"emailDetails"`
		}{s.EmailDetails}

	default:
		return struct {
			IsValid any    `json:"isValid"`
			Error   string `json:"error,omitempty"`
		}{s.VerifyResult, s.Errors[client.FormVerify]}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
