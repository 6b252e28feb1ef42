package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultTokenTTL = 12 * time.Hour

type tokenOutput struct {
	Staff     string    `json:"staff"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewTokenCommand создаёт команду выпуска токена для /api/staff.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <staff>",
		Short: "Issue a bearer token for the staff API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			staff := strings.TrimSpace(args[0])
			if staff == "" {
				return &ExitError{Code: ExitCommandError, Message: "staff name is required"}
			}
			if ttl <= 0 {
				return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("ttl must be positive, got %s", ttl)}
			}
			if rootOpts.issue == nil {
				return &ExitError{Code: ExitCommandError, Message: "token issuing is not configured"}
			}

			expiresAt := time.Now().Add(ttl).UTC().Truncate(time.Second)
			token, err := rootOpts.issue(staff, ttl)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: "issue token", Err: err}
			}

			w := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(w).Encode(tokenOutput{Staff: staff, Token: token, ExpiresAt: expiresAt})
			}
			_, err = fmt.Fprintln(w, token)
			return err
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime")

	return cmd
}
