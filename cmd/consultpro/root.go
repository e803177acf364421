package consultpro

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/consultpro/agents/pkg/config"
)

const version = "1.0.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "consultpro",
	Short: "ConsultPro agents - A2A and MCP endpoints over consultancy data",
	Long:  "ConsultPro agents serves report agents over the A2A protocol, exposes business data as MCP tools, and answers chat requests on /agents.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := loadConfig()
		return err
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.consultpro/consultpro.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(toolsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of ConsultPro agents",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("consultpro v%s\n", version)
	},
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
