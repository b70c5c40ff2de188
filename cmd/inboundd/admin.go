package inboundd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	apiAddr *string
	apiKey  *string
)

func init() {
	// Shared flags for all admin commands
	pf := pflag.NewFlagSet("commonAdminFlags", pflag.ContinueOnError)
	apiAddr = pf.String("apiAddr", "http://localhost:6070", "Address of the inboundd API")
	apiKey = pf.String("apiKey", "", "API key of an admin account")

	AdminClientSetModeCmd.Flags().AddFlagSet(pf)
	AdminClientGetModeCmd.Flags().AddFlagSet(pf)
	AdminClientNonceCmd.Flags().AddFlagSet(pf)
	AdminClientBalanceCmd.Flags().AddFlagSet(pf)

	AdminCmd.AddCommand(AdminClientSetModeCmd)
	AdminCmd.AddCommand(AdminClientGetModeCmd)
	AdminCmd.AddCommand(AdminClientNonceCmd)
	AdminCmd.AddCommand(AdminClientBalanceCmd)
}

var AdminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Inbound queue admin commands",
}

var AdminClientSetModeCmd = &cobra.Command{
	Use:   "set-mode [normal|halted]",
	Short: "Change the operating mode of the inbound queue",
	Run:   runSetMode,
	Args:  cobra.ExactArgs(1),
}

var AdminClientGetModeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Print the operating mode of the inbound queue",
	Run:   runGetMode,
	Args:  cobra.NoArgs,
}

var AdminClientNonceCmd = &cobra.Command{
	Use:   "nonce [CHANNEL_ID]",
	Short: "Print the last accepted nonce of a channel",
	Run:   runGetNonce,
	Args:  cobra.ExactArgs(1),
}

var AdminClientBalanceCmd = &cobra.Command{
	Use:   "balance [ACCOUNT]",
	Short: "Print the balance of an account",
	Run:   runGetBalance,
	Args:  cobra.ExactArgs(1),
}

// doRequest sends a request to the API and returns the response body. Non 200 responses are fatal.
func doRequest(method, path string, body interface{}) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	url := strings.TrimSuffix(*apiAddr, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		log.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("X-Api-Key", *apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("request to %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("request to %s failed with status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody
}

func runSetMode(cmd *cobra.Command, args []string) {
	resp := doRequest(http.MethodPut, "/v1/mode", map[string]string{"mode": args[0]})
	fmt.Println(string(resp))
}

func runGetMode(cmd *cobra.Command, args []string) {
	fmt.Println(string(doRequest(http.MethodGet, "/v1/mode", nil)))
}

func runGetNonce(cmd *cobra.Command, args []string) {
	fmt.Println(string(doRequest(http.MethodGet, "/v1/nonce/"+args[0], nil)))
}

func runGetBalance(cmd *cobra.Command, args []string) {
	fmt.Println(string(doRequest(http.MethodGet, "/v1/balance/"+args[0], nil)))
}
