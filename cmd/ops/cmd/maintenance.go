package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/promptlab/promptlab/internal/imagegen"
	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/promptlab/promptlab/internal/storage"
	"github.com/spf13/cobra"
)

func CleanupStaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-stale",
		Short: "Fail pending generations older than GENERATION_STALE_AFTER",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			assets, err := storage.New(e.cfg)
			if err != nil {
				return err
			}

			// No providers are needed to close records
			generations := service.NewGenerationService(
				repository.NewGenerationRepository(e.db),
				repository.NewErrorLogRepository(e.db),
				service.NewLedgerService(repository.NewLedgerRepository(e.db)),
				assets,
				imagegen.NewRegistry(),
				service.GenerationConfig{StaleAfter: e.cfg.GenerationStaleAfter},
			)

			n, err := generations.CleanupStale()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "failed %d stale generations\n", n)
			return nil
		},
	}
}

func ErrorsCmd() *cobra.Command {
	var limit int
	var showStack bool

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "List recent generation pipeline errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			logs, err := repository.NewErrorLogRepository(e.db).Recent(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tUSER\tGENERATION\tMESSAGE")
			for _, l := range logs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.CreatedAt.Format(time.DateTime), l.UserID, l.GenerationID, firstLine(l.Message))
			}
			err = tw.Flush()
			if err != nil {
				return err
			}

			if showStack {
				for _, l := range logs {
					printStack(cmd, l)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	cmd.Flags().BoolVar(&showStack, "stack", false, "print stack traces")
	return cmd
}

func printStack(cmd *cobra.Command, l *model.ErrorLog) {
	if l.Stack == "" {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n== %s (%s)\n%s\n", l.GenerationID, l.Message, l.Stack)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
