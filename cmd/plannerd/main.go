package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corvidlabs/plannerd/internal/config"
	"github.com/corvidlabs/plannerd/internal/gateway"
	"github.com/corvidlabs/plannerd/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "plannerd",
	Short: "plannerd - personal planning assistant daemon",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway (sessions + reminders + chat)",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show plannerd status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'plannerd onboard' or set PLANNERD_API_KEY / OPENAI_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		if err := config.SaveConfig(cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key and base URL\n", cfgPath)
	fmt.Println("  2. Or set PLANNERD_API_KEY and PLANNERD_BASE_URL environment variables")
	fmt.Println("  3. Run 'plannerd serve' to start the gateway")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Printf("Model: %s\n", modelDisplay(cfg.Agent.Model))
	if len(cfg.Agent.FallbackModels) > 0 {
		data, _ := json.Marshal(cfg.Agent.FallbackModels)
		fmt.Printf("Fallbacks: %s\n", data)
	}
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}

	st, err := store.NewStore(cfg.DBPath())
	if err != nil {
		fmt.Printf("Store: error (%v)\n", err)
		return nil
	}
	defer st.Close()

	ids, err := st.SessionIDs()
	if err != nil {
		fmt.Printf("Sessions: error (%v)\n", err)
		return nil
	}
	fmt.Printf("Store: %s\n", cfg.DBPath())
	fmt.Printf("Sessions: %d\n", len(ids))

	return nil
}

func modelDisplay(m string) string {
	if m == "" {
		return "(built-in defaults)"
	}
	return m
}
