package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/service/member"
	"github.com/fatflowers/alumni/internal/app/worker"
	"github.com/fatflowers/alumni/internal/platform/db"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/types"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				gdb *gorm.DB
				log *zap.SugaredLogger
			)
			return withApp(cmd.Context(), func(ctx context.Context) error {
				if err := db.AutoMigrate(log, gdb.WithContext(ctx)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}, &gdb, &log)
		},
	}
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import legacy members from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			adminID, _ := cmd.Flags().GetString("admin")
			if path == "" {
				return errors.New("--file is required")
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			if info.Size() > member.MaxImportSize {
				return fmt.Errorf("%s is larger than %d bytes", path, member.MaxImportSize)
			}

			var members *member.Service
			return withApp(cmd.Context(), func(ctx context.Context) error {
				res, err := members.Import(ctx, adminID, filepath.Base(path), f)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			}, &members)
		},
	}

	cmd.Flags().StringP("file", "f", "", "Path to the members CSV")
	cmd.Flags().String("admin", "", "Admin user id recorded in the audit log")

	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one payment reconciliation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			var w *worker.Reconciliation
			return withApp(cmd.Context(), func(ctx context.Context) error {
				report, err := w.RunOnce(ctx)
				if report != nil {
					if perr := printJSON(cmd, report); perr != nil {
						return perr
					}
				}
				return err
			}, &w)
		},
	}
}

func expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire lapsed memberships and profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			var w *worker.Expiry
			return withApp(cmd.Context(), func(ctx context.Context) error {
				report, err := w.RunOnce(ctx)
				if report != nil {
					if perr := printJSON(cmd, report); perr != nil {
						return perr
					}
				}
				return err
			}, &w)
		},
	}
}

func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account and print its password setup link",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			if email == "" {
				return errors.New("--email is required")
			}

			var idp identity.Provider
			return withApp(cmd.Context(), func(ctx context.Context) error {
				u, err := idp.GetUserByEmail(ctx, email)
				switch {
				case errors.Is(err, identity.ErrUserNotFound):
					if u, err = idp.CreateUser(ctx, email, types.RoleAdmin); err != nil {
						return err
					}
				case err != nil:
					return err
				default:
					if err := idp.SetRole(ctx, u.ID, types.RoleAdmin); err != nil {
						return err
					}
				}
				link, err := idp.GeneratePasswordSetupLink(ctx, u.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin %s (%s)\nset password: %s\n", email, u.ID, link)
				return nil
			}, &idp)
		},
	}

	cmd.Flags().StringP("email", "e", "", "Admin email address")

	return cmd
}
