package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/handler"
	"aura-identity-service/internal/usecase"
)

func recoveryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "Configure and run social recovery",
	}
	cmd.AddCommand(recoveryConfigureCmd())
	cmd.AddCommand(recoveryShowCmd())
	cmd.AddCommand(recoveryDeactivateCmd())
	cmd.AddCommand(trusteeCmd())
	cmd.AddCommand(recoveryInitiateCmd())
	cmd.AddCommand(recoveryStatusCmd())
	cmd.AddCommand(recoverySubmitCmd())
	cmd.AddCommand(recoveryExecuteCmd())
	cmd.AddCommand(recoveryCancelCmd())
	return cmd
}

func printConfig(r handler.RecoveryConfigResponse) {
	fmt.Printf("Owner:     %s\n", r.Owner)
	fmt.Printf("Threshold: %d of %d\n", r.Threshold, r.TotalTrustees)
	fmt.Printf("Delay:     %d blocks\n", r.DelayPeriod)
	fmt.Printf("Active:    %t\n", r.Active)
	fmt.Printf("Deposit:   %d\n", r.Deposit)
}

func printRecovery(r handler.RecoveryResponse) {
	fmt.Printf("Lost account: %s\n", r.LostAccount)
	fmt.Printf("Requested by: %s\n", r.RequestingAccount)
	fmt.Printf("New key:      %s\n", r.NewPublicKey)
	fmt.Printf("Shares:       %d\n", r.SubmittedShares)
	fmt.Printf("Execute at:   block %d\n", r.ExecuteAt)
	if r.State != "" {
		fmt.Printf("State:        %s (threshold %d, height %d)\n", r.State, r.Threshold, r.Height)
	}
}

// recoveryConfigureCmd はリカバリー設定コマンド。
func recoveryConfigureCmd() *cobra.Command {
	var threshold int
	var trustees []string
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Configure social recovery for the calling account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			body, err := call(http.MethodPost, "/v1/recovery/config", handler.ConfigureRecoveryRequest{
				Threshold: threshold,
				Trustees:  trustees,
			}, http.StatusCreated)
			if err != nil {
				return err
			}
			return render(body, printConfig)
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Number of trustee shares required (required)")
	cmd.Flags().StringSliceVar(&trustees, "trustee", nil, "Trustee account ID (repeatable, required)")
	cmd.MarkFlagRequired("threshold")
	cmd.MarkFlagRequired("trustee")
	return cmd
}

// recoveryShowCmd はリカバリー設定の表示コマンド。
func recoveryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <account>",
		Short: "Show an account's recovery configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(http.MethodGet, "/v1/recovery/config/"+url.PathEscape(args[0]), nil, http.StatusOK)
			if err != nil {
				return err
			}
			return render(body, printConfig)
		},
	}
}

// recoveryDeactivateCmd はリカバリー設定の無効化コマンド。
func recoveryDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate recovery and release the deposit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			if _, err := call(http.MethodDelete, "/v1/recovery/config", nil, http.StatusNoContent); err != nil {
				return err
			}
			fmt.Printf("Deactivated recovery for %q\n", account)
			return nil
		},
	}
}

func trusteeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trustee",
		Short: "Manage trustees of the calling account",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <trustee>",
		Short: "Add a trustee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			if _, err := call(http.MethodPost, "/v1/recovery/trustees", handler.TrusteeRequest{Trustee: args[0]}, http.StatusCreated); err != nil {
				return err
			}
			fmt.Printf("Added trustee %q\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <trustee>",
		Short: "Remove a trustee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			if _, err := call(http.MethodDelete, "/v1/recovery/trustees/"+url.PathEscape(args[0]), nil, http.StatusNoContent); err != nil {
				return err
			}
			fmt.Printf("Removed trustee %q\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "share <owner> <trustee>",
		Short: "Show a trustee record (owner or trustee only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			path := "/v1/recovery/shares/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1])
			body, err := call(http.MethodGet, path, nil, http.StatusOK)
			if err != nil {
				return err
			}
			return render(body, func(r handler.TrusteeShareResponse) {
				fmt.Printf("confirmed: %t\n", r.Confirmed)
				if r.Share != "" {
					fmt.Printf("share:     %s\n", r.Share)
				}
			})
		},
	})
	return cmd
}

// recoveryInitiateCmd はリカバリー開始コマンド。
func recoveryInitiateCmd() *cobra.Command {
	var newKey string
	cmd := &cobra.Command{
		Use:   "initiate <lost-account>",
		Short: "Request a key rotation for a lost account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			body, err := call(http.MethodPost, "/v1/recoveries/"+url.PathEscape(args[0]),
				handler.InitiateRecoveryRequest{NewPublicKey: newKey}, http.StatusCreated)
			if err != nil {
				return err
			}
			return render(body, printRecovery)
		},
	}
	cmd.Flags().StringVar(&newKey, "new-public-key", "", "Replacement Ed25519 public key in hex (required)")
	cmd.MarkFlagRequired("new-public-key")
	return cmd
}

// recoveryStatusCmd は進行中のリカバリー表示コマンド。
func recoveryStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <lost-account>",
		Short: "Show the active recovery request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(http.MethodGet, "/v1/recoveries/"+url.PathEscape(args[0]), nil, http.StatusOK)
			if err != nil {
				return err
			}
			return render(body, printRecovery)
		},
	}
}

// recoverySubmitCmd はシェア提出コマンド。
func recoverySubmitCmd() *cobra.Command {
	var share string
	cmd := &cobra.Command{
		Use:   "submit <lost-account>",
		Short: "Submit the calling trustee's share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			body, err := call(http.MethodPost, "/v1/recoveries/"+url.PathEscape(args[0])+"/shares",
				handler.SubmitShareRequest{Share: base64.StdEncoding.EncodeToString([]byte(share))}, http.StatusOK)
			if err != nil {
				return err
			}
			return render(body, printRecovery)
		},
	}
	cmd.Flags().StringVar(&share, "share", "", "Share payload (required)")
	cmd.MarkFlagRequired("share")
	return cmd
}

// recoveryExecuteCmd はリカバリー実行コマンド。
func recoveryExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <lost-account>",
		Short: "Execute a ready recovery request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			body, err := call(http.MethodPost, "/v1/recoveries/"+url.PathEscape(args[0])+"/execute", nil, http.StatusOK)
			if err != nil {
				return err
			}
			return render(body, func(r handler.IdentityResponse) {
				fmt.Printf("Recovered %q\n  DID:        %s\n  Public key: %s\n", r.Account, r.DID, r.PublicKey)
			})
		},
	}
}

// recoveryCancelCmd はリカバリー取消コマンド。--seed を指定すると旧鍵で署名して取り消す。
func recoveryCancelCmd() *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "cancel <lost-account>",
		Short: "Cancel the active recovery request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			lost, err := domain.ParseAccountID(args[0])
			if err != nil {
				return err
			}

			var req any
			if seed != "" {
				signature, err := signCancel(lost, seed)
				if err != nil {
					return err
				}
				req = handler.CancelRecoveryRequest{Signature: signature}
			}
			if _, err := call(http.MethodDelete, "/v1/recoveries/"+url.PathEscape(args[0]), req, http.StatusNoContent); err != nil {
				return err
			}
			fmt.Printf("Cancelled recovery of %q\n", lost)
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "Hex seed of the lost account's current key, to cancel by signature")
	return cmd
}

// signCancel は進行中の要求を取得し、旧鍵で取消メッセージに署名する。
func signCancel(lost domain.AccountID, seedHex string) (string, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil || len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("--seed must be %d bytes of hex", ed25519.SeedSize)
	}
	body, err := call(http.MethodGet, "/v1/recoveries/"+url.PathEscape(string(lost)), nil, http.StatusOK)
	if err != nil {
		return "", err
	}
	var status handler.RecoveryResponse
	if err := decodeBody(body, &status); err != nil {
		return "", err
	}
	newKey, err := domain.ParsePublicKey(status.NewPublicKey)
	if err != nil {
		return "", fmt.Errorf("parsing new public key: %w", err)
	}
	msg := usecase.CancelRecoveryMessage(&domain.RecoveryRequest{
		LostAccount:       lost,
		RequestingAccount: domain.AccountID(status.RequestingAccount),
		NewPublicKey:      newKey,
		ExecuteAt:         status.ExecuteAt,
	})
	return hex.EncodeToString(ed25519.Sign(ed25519.NewKeyFromSeed(seed), msg)), nil
}
