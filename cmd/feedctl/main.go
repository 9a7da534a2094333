package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zfogg/sidechain/feedengine/internal/apiclient"
)

var (
	verbose    bool
	configPath string
	outputFmt  string
	asUser     string

	logger *log.Logger
	client *apiclient.Client
)

var rootCmd = &cobra.Command{
	Use:   "feedctl",
	Short: "feedctl - Browse feeds and reputation from the command line",
	Long: `feedctl talks to a running feed engine. It pages through the global
and home feeds, polls for new items and inspects user reputation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(configPath); err != nil {
			return fmt.Errorf("error initializing config: %w", err)
		}
		viper.Set("output.format", outputFmt)
		if asUser != "" {
			viper.Set("auth.user_id", asUser)
		}

		logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
		if verbose {
			logger.SetLevel(log.DebugLevel)
		} else {
			logger.SetLevel(log.WarnLevel)
		}

		client = apiclient.New(apiclient.Options{
			BaseURL: viper.GetString("api.base_url"),
			Timeout: viper.GetDuration("api.timeout"),
			Token:   viper.GetString("auth.token"),
			UserID:  viper.GetString("auth.user_id"),
			Logger:  logger,
		})
		return nil
	},
}

// initConfig layers defaults, ~/.config/feedctl/config.toml (or --config)
// and FEEDCTL_* environment variables.
func initConfig(path string) error {
	viper.SetDefault("api.base_url", "http://localhost:8787")
	viper.SetDefault("api.timeout", 30*time.Second)
	viper.SetDefault("auth.token", "")
	viper.SetDefault("auth.user_id", "")
	viper.SetDefault("output.format", "text")

	viper.SetEnvPrefix("feedctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".config", "feedctl", "config.toml")
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("toml")
	return viper.ReadInConfig()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/feedctl/config.toml)")
	rootCmd.PersistentFlags().StringVar(&outputFmt, "output", "text", "Output format: text or json")
	rootCmd.PersistentFlags().StringVar(&asUser, "as-user", "", "Send requests as this viewer id (servers without a JWT secret only)")

	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(reputationCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
