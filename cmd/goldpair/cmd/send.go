package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/goldpair/signal"
)

var sendCmd = &cobra.Command{
	Use:   "send <signal>",
	Short: "Post a signal to a running webhook server",
	Long: `Send a signal in the same JSON envelope TradingView alerts use.

Examples:
  goldpair send "5M ZONE T BUY" --approval=true
  goldpair send "T BUY" --id alert-0001
  goldpair send "SELL CLOSE"`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

var (
	sendURL      string
	sendID       string
	sendApproval string
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendURL, "url", "http://localhost:3000/webhook", "webhook endpoint")
	sendCmd.Flags().StringVar(&sendID, "id", "", "signal id (defaults to a timestamp)")
	sendCmd.Flags().StringVar(&sendApproval, "approval", "", "zone approval flag, true or false")
}

func runSend(cmd *cobra.Command, args []string) error {
	id := sendID
	if id == "" {
		id = fmt.Sprintf("cli-%d", time.Now().UnixNano())
	}
	p := signal.Payload{Signal: strings.TrimSpace(args[0]), SignalID: id}
	if sendApproval != "" {
		v, err := strconv.ParseBool(sendApproval)
		if err != nil {
			return fmt.Errorf("--approval: %w", err)
		}
		p.Approval = &v
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Post(sendURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post signal: %w", err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.Status, bytes.TrimSpace(reply))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("signal rejected: %s", resp.Status)
	}
	return nil
}
