package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/handler"
)

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage identities",
	}
	cmd.AddCommand(identityCreateCmd())
	cmd.AddCommand(identityGetCmd())
	cmd.AddCommand(identityLookupCmd())
	cmd.AddCommand(balanceCmd())
	return cmd
}

// identityCreateCmd は呼び出し元のアイデンティティ作成コマンド。
func identityCreateCmd() *cobra.Command {
	var publicKey, metadata string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the calling account's identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAccount(); err != nil {
				return err
			}
			if _, err := domain.ParsePublicKey(publicKey); err != nil {
				return fmt.Errorf("--public-key must be 32 bytes of hex")
			}
			req := handler.CreateIdentityRequest{PublicKey: publicKey}
			if metadata != "" {
				req.Metadata = base64.StdEncoding.EncodeToString([]byte(metadata))
			}

			body, err := call(http.MethodPost, "/v1/identities", req, http.StatusCreated)
			if err != nil {
				return err
			}
			return render(body, func(r handler.IdentityResponse) {
				fmt.Printf("Created identity for %q\n  DID: %s\n", r.Account, r.DID)
			})
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "Ed25519 public key in hex (required)")
	cmd.Flags().StringVar(&metadata, "metadata", "", "Free-form metadata")
	cmd.MarkFlagRequired("public-key")
	return cmd
}

// identityGetCmd はアイデンティティ取得コマンド。
func identityGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <account>",
		Short: "Show an account's identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(http.MethodGet, "/v1/identities/"+url.PathEscape(args[0]), nil, http.StatusOK)
			if err != nil {
				return err
			}
			return render(body, func(r handler.IdentityResponse) {
				fmt.Printf("Account:    %s\n", r.Account)
				fmt.Printf("DID:        %s\n", r.DID)
				fmt.Printf("Public key: %s\n", r.PublicKey)
				fmt.Printf("Created at: block %d\n", r.CreatedAt)
			})
		},
	}
}

// identityLookupCmd はDID逆引きコマンド。
func identityLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <did>",
		Short: "Resolve a DID to its account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(http.MethodGet, "/v1/dids/"+url.PathEscape(args[0]), nil, http.StatusOK)
			if err != nil {
				return err
			}
			return render(body, func(r handler.DIDResponse) {
				fmt.Println(r.Account)
			})
		},
	}
}

// balanceCmd は残高表示コマンド。
func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account's free and reserved balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(http.MethodGet, "/v1/balances/"+url.PathEscape(args[0]), nil, http.StatusOK)
			if err != nil {
				return err
			}
			return render(body, func(r handler.BalanceResponse) {
				fmt.Printf("free: %d  reserved: %d\n", r.Free, r.Reserved)
			})
		},
	}
}

// keygenCmd はEd25519鍵ペアを生成する。
func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 key pair for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
			var pk domain.PublicKey
			copy(pk[:], pub)
			fmt.Printf("public key: %s\n", pk.Hex())
			fmt.Printf("seed:       %s\n", hex.EncodeToString(priv.Seed()))
			fmt.Printf("DID:        %s\n", domain.GenerateDID(pk))
			return nil
		},
	}
}
