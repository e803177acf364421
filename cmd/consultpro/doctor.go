package consultpro

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/consultpro/agents/pkg/config"
	"github.com/consultpro/agents/pkg/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose issues with the ConsultPro installation",
	RunE:  runDoctor,
}

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("ConsultPro Doctor v%s\n", version)
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("Go: %s\n\n", runtime.Version())

	checks := []checkResult{
		checkDataDir(),
		checkConfig(),
		checkDatabase(cmd.Context()),
		checkA2AAuth(),
		checkGatewayHealth(),
	}

	passed, failed := 0, 0
	for _, c := range checks {
		status := "✓"
		if !c.ok {
			status = "✗"
			failed++
		} else {
			passed++
		}
		fmt.Printf("  %s %s: %s\n", status, c.name, c.detail)
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)

	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

func checkDataDir() checkResult {
	dir := config.DataDir()
	info, err := os.Stat(dir)
	if err != nil {
		return checkResult{"Data directory", false, fmt.Sprintf("%s does not exist", dir)}
	}
	if !info.IsDir() {
		return checkResult{"Data directory", false, fmt.Sprintf("%s is not a directory", dir)}
	}
	return checkResult{"Data directory", true, dir}
}

func checkConfig() checkResult {
	path := configPath()
	if _, err := os.Stat(path); err != nil {
		return checkResult{"Config file", false, fmt.Sprintf("%s not found (using defaults)", path)}
	}
	cfg := config.Current()
	return checkResult{"Config file", true, fmt.Sprintf("%s (port %d)", path, cfg.Gateway.Port)}
}

func checkDatabase(ctx context.Context) checkResult {
	dsn := config.Current().Store.DSN
	info, err := os.Stat(dsn)
	if err != nil {
		return checkResult{"Database", false, fmt.Sprintf("%s not found (will be created on first start)", dsn)}
	}

	db, err := store.New(dsn)
	if err != nil {
		return checkResult{"Database", false, fmt.Sprintf("open failed: %s", err)}
	}
	defer func() { _ = db.Close() }()

	if ctx == nil {
		ctx = context.Background()
	}
	clients, err := db.ListClients(ctx, store.ClientFilter{})
	if err != nil {
		return checkResult{"Database", false, fmt.Sprintf("query failed: %s", err)}
	}
	return checkResult{"Database", true, fmt.Sprintf("%s (%s, %s)",
		dsn, humanize.Bytes(uint64(info.Size())), humanize.Comma(int64(len(clients)))+" clients")}
}

func checkA2AAuth() checkResult {
	cfg := config.Current()
	if !cfg.A2A.Enabled {
		return checkResult{"A2A auth", true, "a2a disabled"}
	}
	if cfg.A2A.AuthToken == "" {
		return checkResult{"A2A auth", false, "no auth_token set, /a2a is open (optional)"}
	}
	return checkResult{"A2A auth", true, fmt.Sprintf("bearer token set (%d chars)", len(cfg.A2A.AuthToken))}
}

func checkGatewayHealth() checkResult {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(localURL("/healthz"))
	if err != nil {
		return checkResult{"Gateway", false, "not running"}
	}
	defer resp.Body.Close()

	port := config.Current().Gateway.Port
	if resp.StatusCode == http.StatusOK {
		return checkResult{"Gateway", true, fmt.Sprintf("running at :%d", port)}
	}
	return checkResult{"Gateway", false, fmt.Sprintf("unhealthy (status %d)", resp.StatusCode)}
}
