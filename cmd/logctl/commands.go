package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/repository"
	"github.com/GoPolymarket/logreplay/internal/service"
	"github.com/spf13/cobra"
)

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.provider != "" {
		cfg.Database.Provider = strings.ToLower(flags.provider)
	}
	if flags.dsn != "" {
		cfg.Database.ConnectionString = flags.dsn
	}
	return cfg, nil
}

func openStores(ctx context.Context, flags *globalFlags) (*config.Config, *repository.Stores, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, err
	}
	stores, err := repository.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, stores, nil
}

func newInitStoreCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init-store",
		Short: "Create the access log and admin account schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stores, err := openStores(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stores.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "store %s initialized\n", stores.Provider)
			return nil
		},
	}
}

func newCreateAdminCmd(flags *globalFlags) *cobra.Command {
	var username, password, displayName, role string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an operator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stores, err := openStores(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stores.Close()

			acc, err := service.NewAuthService(stores.Accounts, &cfg.Auth).
				CreateAdmin(cmd.Context(), username, password, displayName, role)
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("username %q is already taken", username)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (id %d, role %s)\n", acc.Username, acc.ID, acc.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "admin", "admin or viewer")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newListAdminsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-admins",
		Short: "List operator accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stores, err := openStores(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stores.Close()

			admins, err := service.NewAuthService(stores.Accounts, &cfg.Auth).ListAdmins(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tDISPLAY NAME\tLAST LOGIN")
			for _, a := range admins {
				last := "-"
				if a.LastLoginAt != nil {
					last = a.LastLoginAt.Format("2006-01-02T15:04:05Z")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", a.ID, a.Username, a.Role, a.DisplayName, last)
			}
			return w.Flush()
		},
	}
}

func newPurgeCmd(flags *globalFlags) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete access logs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stores, err := openStores(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stores.Close()

			svc := service.NewAccessLogService(stores.AccessLogs, nil, 1, 1)
			defer svc.Close()
			removed, err := svc.Purge(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records older than %d days\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "retention window in days")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	var iterations int

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a PBKDF2 hash and salt for manual account seeding",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password required as argument or on stdin")
				}
				plain = strings.TrimRight(line, "\r\n")
			}
			if plain == "" {
				return errors.New("password must not be empty")
			}

			hash, salt, err := service.NewPasswordHasher(iterations).Hash(plain)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\nsalt: %s\n", hash, salt)
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 10000, "PBKDF2 iteration count")
	return cmd
}
