package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/promptlab/promptlab/internal/model"
	"github.com/promptlab/promptlab/internal/repository"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/spf13/cobra"
)

func CreditCmd() *cobra.Command {
	var userID, reference string
	var amount int64

	cmd := &cobra.Command{
		Use:   "credit",
		Short: "Grant coins to a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount <= 0 {
				return errors.New("--amount must be positive")
			}
			if reference == "" {
				reference = fmt.Sprintf("ops:%d", time.Now().Unix())
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			_, err = repository.NewUserRepository(e.db).ByID(userID)
			if err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}

			ledger := service.NewLedgerService(repository.NewLedgerRepository(e.db))
			balance, err := ledger.Credit(userID, amount, model.LedgerKindManual, reference)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "credited %d to %s, balance %d\n", amount, userID, balance)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "coins to grant")
	cmd.Flags().StringVar(&reference, "reference", "", "ledger reference (default ops:<unix time>)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func BalanceCmd() *cobra.Command {
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a user's balance and recent ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			ledger := service.NewLedgerService(repository.NewLedgerRepository(e.db))
			balance, err := ledger.Balance(userID)
			if err != nil {
				return err
			}
			entries, err := ledger.Entries(userID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "balance: %d\n\n", balance)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tKIND\tAMOUNT\tBALANCE\tREFERENCE")
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%+d\t%d\t%s\n",
					entry.CreatedAt.Format(time.DateTime), entry.Kind, entry.Amount, entry.BalanceAfter, entry.Reference)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of ledger entries")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
