package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/payment-relay/internal/auth"
	"github.com/noah-isme/payment-relay/internal/schema"
)

// payloadcheck validates relay request payloads offline and issues caller tokens.
// Exit code 0 = valid, 1 = validation failed, 2 = other error.
func main() {
	err := newRootCmd().Execute()
	var invalid errInvalid
	switch {
	case err == nil:
	case errors.As(err, &invalid):
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

type errInvalid struct{ fields int }

func (e errInvalid) Error() string { return fmt.Sprintf("%d invalid field(s)", e.fields) }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "payloadcheck",
		Short:         "Validate payment relay payloads without calling the provider",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("at", "", "evaluate card expiry as of this date (YYYY-MM-DD); defaults to today")
	root.AddCommand(
		checkCmd("payment", "Validate a create-payment request", decodeAs[schema.PaymentRequest]),
		checkCmd("refund", "Validate a refund request", decodeAs[schema.RefundRequest]),
		tokenCmd(),
	)
	return root
}

type decodeFunc func(v *schema.Validator, r io.Reader) (any, error)

func decodeAs[T any](v *schema.Validator, r io.Reader) (any, error) {
	return schema.Decode[T](v, r)
}

func checkCmd(name, short string, decode decodeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <file|->",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validator, err := validatorFor(cmd)
			if err != nil {
				return err
			}
			in, closeFn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			payload, err := decode(validator, in)
			var verr *schema.ValidationError
			if errors.As(err, &verr) {
				for _, f := range verr.Fields {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%s)\n", f.Field, f.Message, f.Rule)
				}
				return errInvalid{fields: len(verr.Fields)}
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
}

func validatorFor(cmd *cobra.Command) (*schema.Validator, error) {
	at, err := cmd.Flags().GetString("at")
	if err != nil || at == "" {
		return schema.NewValidator(), err
	}
	day, err := time.Parse(time.DateOnly, at)
	if err != nil {
		return nil, fmt.Errorf("--at: %w", err)
	}
	return schema.NewValidator(schema.WithClock(func() time.Time { return day })), nil
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <caller-id>",
		Short: "Sign a bearer token for a merchant caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			issuer, _ := cmd.Flags().GetString("issuer")
			audience, _ := cmd.Flags().GetString("audience")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			a, err := auth.NewAuthenticator(secret, issuer, audience)
			if err != nil {
				return err
			}
			token, err := a.Sign(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("secret", os.Getenv("AUTH_JWT_SECRET"), "HMAC secret (defaults to AUTH_JWT_SECRET)")
	cmd.Flags().String("issuer", os.Getenv("AUTH_JWT_ISSUER"), "token issuer")
	cmd.Flags().String("audience", os.Getenv("AUTH_JWT_AUDIENCE"), "token audience")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}
