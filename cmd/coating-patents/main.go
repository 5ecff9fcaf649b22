// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the coating-patents CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/coating-patents/internal/logging"
	"github.com/pdiddy/coating-patents/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// envPrefix prefixes every environment override, e.g. COATING_PATENTS_LIMIT.
const envPrefix = "COATING_PATENTS"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets secrets.Set

	logger = slog.Default()
)

// rootCmd is the base command for the coating-patents CLI.
var rootCmd = &cobra.Command{
	Use:   "coating-patents",
	Short: "Extract can-coating patents and classify their coating chemistry",
	Long: `coating-patents queries the Google Patents public dataset for US publications
about food and beverage can coatings, normalizes them into flat records, and
optionally asks a hosted language model to label each record's coating
chemistry. Results are written as CSV or XLSX.

Settings come from flags, COATING_PATENTS_* environment variables, and an
optional coating-patents.yaml config file, in that order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		l, err := logging.New(os.Stderr, viper.GetString("log-level"), viper.GetString("log-format"))
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)

		s, err := secrets.Load(viper.GetString("secrets-dir"), logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("secrets_loaded", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./coating-patents.yaml or ~/.config/coating-patents/config.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", logging.FormatText, "log format: text or json")
	pf.String("secrets-dir", secrets.DefaultDir, "directory holding API key files")
	_ = viper.BindPFlags(pf)
}

// configureViper applies the environment conventions shared by every command.
func configureViper(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("coating-patents")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "coating-patents"))
		}
	}

	configureViper(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlags binds the flags of the command being executed. Commands share
// flag names, so binding happens at run time rather than in init.
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
