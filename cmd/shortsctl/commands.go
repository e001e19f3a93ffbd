package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"shortcast/internal/artifact"
	"shortcast/internal/config"
	"shortcast/internal/models"
	"shortcast/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "shortsctl",
	Short: "Admin tool for the shortcast pipeline",
}

// Execute wires the subcommands and runs the CLI.
func Execute(jobs *storage.JobRepository, store *artifact.Store, cfg *config.Config) {
	rootCmd.AddCommand(listCmd(jobs))
	rootCmd.AddCommand(statusCmd(jobs))
	rootCmd.AddCommand(statsCmd(jobs))
	rootCmd.AddCommand(cancelCmd(jobs))
	rootCmd.AddCommand(purgeCmd(store, cfg))

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func listCmd(jobs *storage.JobRepository) *cobra.Command {
	var owner string
	var stage string
	var page int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, total, err := jobs.List(context.Background(), storage.ListOptions{
				Owner:    owner,
				Stage:    models.Stage(stage),
				Page:     page,
				PageSize: 50,
			})
			if err != nil {
				return err
			}

			fmt.Printf("%d jobs\n", total)
			for _, job := range result {
				fmt.Printf("%s  %-16s %3d%%  %s  %s\n",
					job.ID, job.Stage, job.Progress,
					job.CreatedAt.Format(time.RFC3339), job.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (required)")
	cmd.Flags().StringVar(&stage, "stage", "", "filter by stage")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func statusCmd(jobs *storage.JobRepository) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's stage and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := jobs.GetByID(context.Background(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job not found: %s", args[0])
			}

			fmt.Printf("ID:        %s\n", job.ID)
			fmt.Printf("Owner:     %s\n", job.Owner)
			fmt.Printf("Stage:     %s (%d%%)\n", job.Stage, job.Progress)
			fmt.Printf("Step:      %s\n", job.Stage.Step())
			if job.Error != nil {
				fmt.Printf("Error:     [%s at %s] %s\n", job.Error.Kind, job.Error.Stage, job.Error.Message)
			}
			if job.PublishedURL != "" {
				fmt.Printf("Published: %s\n", job.PublishedURL)
			}
			for stage, key := range job.OutputRefs {
				fmt.Printf("Output:    %s -> %s\n", stage, key)
			}
			return nil
		},
	}
}

func statsCmd(jobs *storage.JobRepository) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := jobs.CountByStage(context.Background())
			if err != nil {
				return err
			}
			for stage, count := range counts {
				fmt.Printf("%-16s %d\n", stage, count)
			}
			return nil
		},
	}
}

func cancelCmd(jobs *storage.JobRepository) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := jobs.RequestCancel(context.Background(), args[0], owner)
			if err != nil {
				return err
			}
			fmt.Printf("Cancellation requested for %s (stage %s)\n", job.ID, job.Stage)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func purgeCmd(store *artifact.Store, cfg *config.Config) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired temporary artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff := time.Now().Add(-olderThan)
			deleted := store.PurgeExpired(context.Background(), cutoff)
			fmt.Printf("Deleted %d temporary artifacts older than %s\n", deleted, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", cfg.TempRetention, "minimum age of artifacts to delete")
	return cmd
}
