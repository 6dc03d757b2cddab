package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	accountApp "github.com/menofreact/whatsapp-sending-engine/accounts/application"
	"github.com/menofreact/whatsapp-sending-engine/accounts/security"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the queue and account tables and seed the admin account",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		db, _, users, err := openStores(ctx)
		if err != nil {
			logrus.Fatalf("[MIGRATE] %v", err)
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()

		accounts := accountApp.NewAuthService(users, security.NewTokenIssuer(cfg.Security.SecretKey, cfg.Security.TokenTTL))
		created, err := accounts.SeedAdmin(ctx, cfg.Security.AdminUsername, cfg.Security.AdminPassword)
		if err != nil {
			logrus.Fatalf("[MIGRATE] Failed to seed admin: %v", err)
		}
		if created {
			logrus.Infof("[MIGRATE] Created admin account %q", cfg.Security.AdminUsername)
		}
		logrus.Info("[MIGRATE] Schema is up to date")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
