package consultpro

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/consultpro/agents/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the health of a running gateway",
	RunE:  runStatus,
}

func localURL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", config.Current().Gateway.Port, path)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(localURL("/agents/health"))
	if err != nil {
		fmt.Println("status: gateway is not running")
		return nil
	}
	defer resp.Body.Close()

	var body struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch {
	case resp.StatusCode == http.StatusOK:
		fmt.Printf("status: gateway is %s (%s)\n", body.Status, body.Timestamp)
	case body.Status != "":
		fmt.Printf("status: gateway is %s\n", body.Status)
	default:
		fmt.Printf("status: gateway returned %s\n", resp.Status)
	}
	return nil
}
