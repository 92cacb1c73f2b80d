package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"quiz-progress-service/internal/app"
)

const operatorID = "operator"

// NewSubjectCmd groups operator commands that act on one subject directly
// against the configured store.
func NewSubjectCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subject",
		Short: "Inspect or clear a subject's statistics",
	}
	cmd.AddCommand(
		subjectCommand(configPath, "stats", "Print summed totals", func(ctx context.Context, s *app.ProgressService, id string) (any, error) {
			return s.Stats(ctx, operatorID, id)
		}),
		subjectCommand(configPath, "shards", "Print every stored counter shard", func(ctx context.Context, s *app.ProgressService, id string) (any, error) {
			return s.Counter().ListShards(ctx, id)
		}),
		subjectCommand(configPath, "reset", "Delete statistics and zero the profile totals", func(ctx context.Context, s *app.ProgressService, id string) (any, error) {
			n, err := s.ResetStatistics(ctx, operatorID, id)
			return map[string]int{"deleted": n}, err
		}),
		subjectCommand(configPath, "delete", "Delete statistics and the profile", func(ctx context.Context, s *app.ProgressService, id string) (any, error) {
			n, err := s.DeleteAllData(ctx, operatorID, id)
			return map[string]int{"deleted": n}, err
		}),
	)
	return cmd
}

type subjectAction func(ctx context.Context, service *app.ProgressService, subjectID string) (any, error)

func subjectCommand(configPath *string, use, short string, action subjectAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <subject-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubject(cmd.Context(), *configPath, args[0], cmd.OutOrStdout(), action)
		},
	}
}

func runSubject(ctx context.Context, configPath, subjectID string, out io.Writer, action subjectAction) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := serviceOptions(cfg, b)
	opts.Authorizer = app.AllowAll{}
	service := app.NewProgressService(b.store, opts)
	defer service.Close()

	result, err := action(ctx, service, subjectID)
	if result != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil && err == nil {
			err = encErr
		}
	}
	return err
}
