package cli

import (
	"fmt"
	"strings"
	"time"

	"car-fleet/internal/domain/user"
	"car-fleet/internal/general/jwt"

	"github.com/spf13/cobra"
)

// GenerateUserToken mints a JWT for userID with the given role.
// Keep this dev/internal only. Do not call it from production code paths.
func GenerateUserToken(secret string, ttl time.Duration, userID string, roleStr string) (string, jwt.Claims, error) {
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("invalid role %q: %w", roleStr, err)
	}

	mgr := jwt.NewManager(secret, ttl)
	token, claims, err := mgr.IssueUserToken(userID, role)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("issue token: %w", err)
	}

	return token, *claims, nil
}

func newTokenCommand() *cobra.Command {
	var (
		userID string
		role   string
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:     ModeToken,
		Short:   "Mint a development bearer token",
		Example: "  car-fleet token --user-id=alice --role=USER --secret='<secret>'",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(userID) == "" || strings.TrimSpace(secret) == "" {
				return fmt.Errorf("--user-id and --secret are required")
			}

			token, claims, err := GenerateUserToken(secret, ttl, userID, role)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "TOKEN:")
			fmt.Fprintln(out, token)
			fmt.Fprintln(out, "\nCLAIMS:")
			fmt.Fprintf(out, "  sub:  %s\n", claims.Subject)
			fmt.Fprintf(out, "  role: %s\n", claims.Role)
			fmt.Fprintf(out, "  iat:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "  exp:  %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&userID, "user-id", "", "User id (token subject)")
	fs.StringVar(&role, "role", user.RoleUser.String(), "User role: USER | ADMIN")
	fs.StringVar(&secret, "secret", "", "JWT HMAC secret (HS256)")
	fs.DurationVar(&ttl, "ttl", 2*time.Hour, "Token lifetime")
	return cmd
}
