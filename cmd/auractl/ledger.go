package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/repository"
)

// ledgerCmd はホスト側の操作（入金とブロック高）をデータベースに直接行う。
// 開発環境とテスト環境向け。
func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Host-side ledger operations (development only)",
	}
	cmd.AddCommand(ledgerFundCmd())
	cmd.AddCommand(ledgerAdvanceCmd())
	cmd.AddCommand(ledgerHeightCmd())
	return cmd
}

func ledgerFundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <account> <amount>",
		Short: "Credit free balance to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := domain.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("amount must be a non-negative integer: %w", err)
			}
			db, err := openDB()
			if err != nil {
				return err
			}

			ctx := context.Background()
			ledger := repository.NewLedger(db)
			if err := ledger.Fund(ctx, acct, domain.Balance(amount)); err != nil {
				return fmt.Errorf("funding account: %w", err)
			}
			balance, err := ledger.FindBalance(ctx, acct)
			if err != nil {
				return fmt.Errorf("reading balance: %w", err)
			}
			fmt.Printf("%s free: %d  reserved: %d\n", acct, balance.Free, balance.Reserved)
			return nil
		},
	}
}

func ledgerAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <blocks>",
		Short: "Advance the block height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blocks, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("blocks must be a non-negative integer: %w", err)
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			height, err := repository.NewLedger(db).AdvanceHeight(context.Background(), blocks)
			if err != nil {
				return fmt.Errorf("advancing height: %w", err)
			}
			fmt.Printf("height: %d\n", height)
			return nil
		},
	}
}

func ledgerHeightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "height",
		Short: "Print the current block height",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			height, err := repository.NewLedger(db).CurrentHeight(context.Background())
			if err != nil {
				return fmt.Errorf("reading height: %w", err)
			}
			fmt.Printf("height: %d\n", height)
			return nil
		},
	}
}
