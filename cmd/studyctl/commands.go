package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkin-companion/internal/config"
	"checkin-companion/internal/model"
	"checkin-companion/internal/service"
	"checkin-companion/pkg/database"
	"checkin-companion/pkg/storage"
	"checkin-companion/pkg/token"

	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "studyctl",
		Short:         "Operations tooling for the check-in study",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "Config file path (YAML)")

	load := func() (config.Config, error) {
		return config.Load(configPath)
	}

	cmd.AddCommand(genIDCmd(load), migrateCmd(load), transcriptURLCmd(load))
	return cmd
}

type configLoader func() (config.Config, error)

func genIDCmd(load configLoader) *cobra.Command {
	var (
		prefix string
		count  int
	)
	cmd := &cobra.Command{
		Use:   "gen-id",
		Short: "Generate new participant study IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("--count must be at least 1")
			}
			if !cmd.Flags().Changed("prefix") {
				cfg, err := load()
				if err != nil {
					return err
				}
				prefix = cfg.Study.StudyIDPrefix
			}
			for i := 0; i < count; i++ {
				id, err := token.GenerateStudyID(prefix)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "MH", "ID prefix")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of IDs to generate")
	return cmd
}

func migrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the study tables in MySQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cfg.Database.MySQL.Configured() {
				return errors.New("database.mysql.dsn is not configured")
			}
			if err := database.InitMySQL(cfg.Database.MySQL.DSN); err != nil {
				return err
			}
			if err := database.AutoMigrate(database.DB); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
}

func transcriptURLCmd(load configLoader) *cobra.Command {
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "transcript-url <studyId> <date>",
		Short: "Print a presigned download URL for an archived daily transcript",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID := service.NormalizeStudyID(args[0])
			date := args[1]
			if _, err := time.Parse(model.DateLayout, date); err != nil {
				return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cfg.MinIO.Configured() {
				return errors.New("minio.endpoint is not configured")
			}
			if err := storage.InitMinIO(cfg.MinIO); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			url, err := storage.GetPresignedURL(ctx, cfg.MinIO.BucketName, service.TranscriptObjectName(studyID, date), expiry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().DurationVar(&expiry, "expiry", time.Hour, "URL lifetime")
	return cmd
}
