package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vbonduro/famshop/internal/auth"
	"github.com/vbonduro/famshop/internal/config"
	"github.com/vbonduro/famshop/internal/db"
	"github.com/vbonduro/famshop/internal/domain"
	"github.com/vbonduro/famshop/internal/logging"
	"github.com/vbonduro/famshop/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and print the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer closeWithLog(database, "database", logging.Discard())

		v, dirty, err := db.Version(database)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t) at %s\n", v, dirty, cfg.DBPath)
		return nil
	},
}

var (
	seedFamily string
	seedEmails []string
	tokenTTL   time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a family with a parent and child and print their tokens",
	Long: `Creates a family named by --family. The first --email becomes a PARENT and
any further ones CHILD members. A bearer token is printed for each user when
JWT_SECRET is set.`,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	if len(seedEmails) == 0 {
		return errors.New("at least one --email is required")
	}
	cfg := config.Load()
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeWithLog(database, "database", logging.Discard())

	ctx := cmd.Context()
	family, err := store.NewFamilyStore(database).Create(ctx, seedFamily)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "family %s (%s)\n", family.Name, family.ID)

	users := store.NewUserStore(database)
	var issuer *auth.Issuer
	if cfg.JWTSecret != "" {
		issuer = auth.NewIssuer(cfg.JWTSecret)
	}
	for i, email := range seedEmails {
		role := domain.RoleChild
		if i == 0 {
			role = domain.RoleParent
		}
		u, err := users.Create(ctx, family.ID, email, role)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %-8s %s (%s)\n", u.Role, u.Email, u.ID)
		if issuer == nil {
			continue
		}
		tok, err := issuer.Issue(u.ID, string(u.Role), family.ID, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "           token: %s\n", tok)
	}
	return nil
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is required to issue tokens")
		}
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer closeWithLog(database, "database", logging.Discard())

		u, err := store.NewUserStore(database).GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %s not found", args[0])
		}
		tok, err := auth.NewIssuer(cfg.JWTSecret).Issue(u.ID, string(u.Role), u.FamilyID, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFamily, "family", "Demo family", "family name")
	seedCmd.Flags().StringArrayVar(&seedEmails, "email", nil, "member email; the first is the PARENT (repeatable)")
	seedCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime; 0 issues tokens without expiry")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime; 0 issues tokens without expiry")
}
