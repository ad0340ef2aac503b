package commands

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/api/model"
	"github.com/cuongbtq/pdf-gateway/internal/auth"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// InitKeyCommands registers the keys command group
func InitKeyCommands(rootCmd *cobra.Command, open EnvOpener) {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage api keys",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an api key for a user. The plaintext key is printed once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := open()
			if err != nil {
				return err
			}
			defer env.Close()
			return createKey(cmd, env)
		},
	}
	createCmd.Flags().String("user", "", "Owner user id")
	createCmd.Flags().String("name", "", "Key name")
	createCmd.Flags().String("plan", "free", "Billing plan")
	createCmd.Flags().Int("rpm", 0, "Per-key requests per minute override")
	createCmd.Flags().Int("expires-in-days", 0, "Days until the key expires")
	_ = createCmd.MarkFlagRequired("user")
	_ = createCmd.MarkFlagRequired("name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List api keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := open()
			if err != nil {
				return err
			}
			defer env.Close()
			return listKeys(cmd, env)
		},
	}
	listCmd.Flags().String("user", "", "Only keys owned by this user")

	revokeCmd := &cobra.Command{
		Use:   "revoke KEY_ID",
		Short: "Revoke an api key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := open()
			if err != nil {
				return err
			}
			defer env.Close()
			if err := env.Keys.RevokeAPIKey(cmd.Context(), args[0], ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}

	setPlanCmd := &cobra.Command{
		Use:   "set-plan",
		Short: "Move a user's active api keys to another plan",
		Long: "Api keys keep the plan they were issued with. Run this after a user " +
			"changes plan so their keys follow.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := open()
			if err != nil {
				return err
			}
			defer env.Close()
			return setKeyPlan(cmd, env)
		},
	}
	setPlanCmd.Flags().String("user", "", "Owner user id")
	setPlanCmd.Flags().String("plan", "", "Billing plan")
	_ = setPlanCmd.MarkFlagRequired("user")
	_ = setPlanCmd.MarkFlagRequired("plan")

	keysCmd.AddCommand(createCmd, listCmd, revokeCmd, setPlanCmd)
	rootCmd.AddCommand(keysCmd)
}

func createKey(cmd *cobra.Command, env *Env) error {
	flags := cmd.Flags()
	userID, _ := flags.GetString("user")
	name, _ := flags.GetString("name")
	plan, _ := flags.GetString("plan")
	rpm, _ := flags.GetInt("rpm")
	expiresInDays, _ := flags.GetInt("expires-in-days")

	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	if err := checkPlan(env, plan); err != nil {
		return err
	}

	generated, err := auth.GenerateKey()
	if err != nil {
		return err
	}

	key := &model.APIKey{
		KeyID:     uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyPrefix: generated.Prefix,
		KeyHash:   generated.Hash,
		Plan:      plan,
		CreatedAt: time.Now().UTC(),
	}
	if rpm > 0 {
		key.RateLimitPerMinute = &rpm
	}
	if expiresInDays > 0 {
		expires := key.CreatedAt.AddDate(0, 0, expiresInDays)
		key.ExpiresAt = &expires
	}

	if err := env.Keys.CreateAPIKey(cmd.Context(), key); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key_id: %s\n", key.KeyID)
	fmt.Fprintf(out, "key:    %s\n", generated.Plaintext)
	return nil
}

func setKeyPlan(cmd *cobra.Command, env *Env) error {
	userID, _ := cmd.Flags().GetString("user")
	plan, _ := cmd.Flags().GetString("plan")

	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	if err := checkPlan(env, plan); err != nil {
		return err
	}

	n, err := env.Keys.SetAPIKeyPlan(cmd.Context(), userID, plan)
	if err != nil {
		return err
	}

	env.Logger.Info("API key plan updated",
		slog.String("user_id", userID),
		slog.String("plan", plan),
		slog.Int64("keys", n),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "moved %d key(s) to %s\n", n, plan)
	return nil
}

func checkPlan(env *Env, plan string) error {
	if _, ok := env.Plans[plan]; !ok {
		return fmt.Errorf("unknown plan %q", plan)
	}
	return nil
}

func listKeys(cmd *cobra.Command, env *Env) error {
	userID, _ := cmd.Flags().GetString("user")

	keys, err := env.Keys.ListAPIKeys(cmd.Context(), userID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY ID\tUSER\tNAME\tPREFIX\tPLAN\tSTATE\tLAST USED")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			k.KeyID, k.UserID, k.Name, k.KeyPrefix, k.Plan, keyState(k, time.Now()), formatTime(k.LastUsedAt))
	}
	return tw.Flush()
}

func keyState(k model.APIKey, now time.Time) string {
	switch {
	case k.RevokedAt != nil:
		return "revoked"
	case k.ExpiresAt != nil && !k.ExpiresAt.After(now):
		return "expired"
	default:
		return "active"
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
