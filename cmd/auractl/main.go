// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"aura-identity-service/internal/domain"
	"aura-identity-service/internal/middleware"
)

const version = "1.0.0"

var (
	apiURL  string
	account string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "auractl",
		Short:        "Aura identity and social recovery CLI",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("AURACTL_API_URL")
			}
			if account == "" {
				account = os.Getenv("AURACTL_ACCOUNT")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	cmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set AURACTL_API_URL)")
	cmd.PersistentFlags().StringVar(&account, "as", "", "Calling account ID (or set AURACTL_ACCOUNT)")
	cmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	cmd.AddCommand(identityCmd())
	cmd.AddCommand(recoveryCmd())
	cmd.AddCommand(eventsCmd())
	cmd.AddCommand(keygenCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(ledgerCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("auractl version %s (call version %d)\n", version, domain.CallVersion)
		},
	}
}

// call はAPIを呼び出し、want 以外のステータスならエラーを返す。
// body が nil ならボディ無しで送る。
func call(method, path string, body any, want int) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set AURACTL_API_URL)")
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if account != "" {
		req.Header.Set(middleware.CallerHeader, account)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != want {
		return nil, handleErrorResponse(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// requireAccount は呼び出し元が必要なコマンドで --as を検証する。
func requireAccount() error {
	if account == "" {
		return fmt.Errorf("--as is required (or set AURACTL_ACCOUNT)")
	}
	return nil
}

// render は json 出力ならそのまま、text 出力なら text を呼んで表示する。
func render[T any](body []byte, text func(T)) error {
	if output == "json" {
		fmt.Println(string(body))
		return nil
	}
	var result T
	if err := decodeBody(body, &result); err != nil {
		return err
	}
	text(result)
	return nil
}

func decodeBody(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("%s: %s", errResp.Code, errResp.Message)
	}
	return fmt.Errorf("server returned status %d", statusCode)
}
