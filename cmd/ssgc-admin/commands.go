package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"startup-spark/internal/auth"
	"startup-spark/internal/config"
	"startup-spark/internal/lock"
	"startup-spark/internal/logging"
	"startup-spark/internal/mailer"
	"startup-spark/internal/notify"
	"startup-spark/internal/reconcile"
	"startup-spark/internal/store"
	"startup-spark/internal/store/memory"
	"startup-spark/internal/store/mongo"
)

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [username] [role] [password]",
		Short: "Print an ADMIN_ACCOUNTS entry for one operator",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := args[1]
			if role != auth.RoleAdmin && role != auth.RoleFinance {
				return fmt.Errorf("role must be %s or %s", auth.RoleAdmin, auth.RoleFinance)
			}
			hash, err := auth.HashPassword(args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%s:%s\n", args[0], role, hash)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [username]",
		Short: "Issue an API token without a password, e.g. for scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			var cfg config.Config
			cfg.Auth.JWTSecret = secret
			cfg.Auth.JWTTTL = ttl
			token, claims, err := auth.New(cfg, zap.NewNop()).Issue(args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "role %s, expires %s\n", claims.Role, claims.ExpiresAt.Time.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().String("secret", "", "JWT signing secret (defaults to JWT_SECRET)")
	cmd.Flags().String("role", auth.RoleAdmin, "admin, finance or user")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")

	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile [teamId]",
		Short: "Reconcile one team, or sweep every initiated team",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log, err := logging.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			st, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close(context.Background()) }()

			locker := lock.Locker(lock.NewLocal())
			if cfg.RedisEnabled() {
				client, err := lock.ProvideRedis(cfg)
				if err != nil {
					return err
				}
				defer client.Close()
				locker = lock.NewRedis(client)
			}

			// Teams confirmed here still get their email.
			var n notify.Notifier = notify.Nop{}
			if m := mailer.New(cfg, log); m != nil {
				n = m
			}
			rec := reconcile.New(st, locker, n, log)

			var out any
			if len(args) == 1 {
				out, err = rec.Reconcile(ctx, args[0])
			} else {
				out, err = rec.Sweep(ctx)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().Duration("timeout", 5*time.Minute, "Give up after this long")

	return cmd
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.Store.Backend == "memory" {
		return memory.New(), nil
	}
	return mongo.Connect(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase, log)
}
