package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aura-identity-service/internal/handler"
)

// eventsCmd はイベントフィードの表示コマンド。
func eventsCmd() *cobra.Command {
	var after uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List ledger events in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/v1/events?after=%d&limit=%d", after, limit)
			body, err := call(http.MethodGet, path, nil, http.StatusOK)
			if err != nil {
				return err
			}
			return render(body, func(page handler.EventPage) {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "SEQ\tHEIGHT\tTYPE\tDETAIL")
				for _, e := range page.Events {
					fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", e.Seq, e.Height, e.Type, eventDetail(e))
				}
				w.Flush()
				fmt.Printf("next: --after %d\n", page.Next)
			})
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "Only show events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events")
	return cmd
}

func eventDetail(e handler.EventResponse) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("account", e.Account)
	add("trustee", e.Trustee)
	add("lost", e.LostAccount)
	add("requester", e.RequestingAccount)
	add("new", e.NewAccount)
	add("did", e.DID)
	if e.Threshold > 0 {
		parts = append(parts, fmt.Sprintf("threshold=%d/%d", e.Threshold, e.TotalTrustees))
	}
	return strings.Join(parts, " ")
}
