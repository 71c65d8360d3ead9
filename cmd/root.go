/*
 * debrid-relay re-serves debrid streaming links through a single egress address.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lucasduport/debrid-relay/pkg/config"
	"github.com/lucasduport/debrid-relay/pkg/server"
	"github.com/lucasduport/debrid-relay/pkg/utils"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "debrid-relay",
	Short: "Stremio addon relaying Torrentio debrid streams through one address",
	Long: `debrid-relay serves a Stremio addon in front of Torrentio. Debrid download
links are resolved once, cached, and streamed back through this server so
that the debrid provider only ever sees the server's address.

It supports:
- Resolution caching with one upstream probe per link at a time
- Range requests for seeking
- Stream lists as Stremio JSON or m3u playlists
- Optional relay history in PostgreSQL`,

	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.Load(viper.GetViper())
		if err != nil {
			return utils.PrintErrorAndReturn(err)
		}
		if err := utils.SetupLogging(conf.LogLevel, conf.LogFile); err != nil {
			return utils.PrintErrorAndReturn(err)
		}
		defer utils.Close()

		utils.InfoLog("[debrid-relay] Torrentio URL: %s", utils.RedactURL(conf.TorrentioURL.String()))
		utils.InfoLog("[debrid-relay] Public URL: %s", conf.ProxyServerURL)
		utils.InfoLog("[debrid-relay] Provider: %s", conf.Provider)
		if conf.AuthEnabled() {
			utils.InfoLog("[debrid-relay] API key authentication is ENABLED (%s)", conf.APIKey.Masked())
		} else {
			utils.WarnLog("[debrid-relay] API key authentication is DISABLED, anyone reaching this server can use it")
		}
		if conf.BandwidthLimit > 0 {
			utils.InfoLog("[debrid-relay] Egress capped at %.1f MB/s", float64(conf.BandwidthLimit)/(1024*1024))
		}

		srv, err := server.NewServer(conf)
		if err != nil {
			return utils.PrintErrorAndReturn(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return srv.Serve(ctx)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.debrid-relay.yaml)")

	// Upstream and public addresses
	rootCmd.Flags().StringP("torrentio-url", "u", "", "Torrentio addon URL including its debrid configuration")
	rootCmd.Flags().String("proxy-server-url", "", "Public URL of this server, used in rewritten stream links")
	rootCmd.Flags().String("provider", config.DefaultProvider, "Debrid provider path segment")
	rootCmd.Flags().Int("port", config.DefaultPort, "Listening port")
	rootCmd.Flags().String("hostname", "", "Listening address")

	// Authentication
	rootCmd.Flags().String("api-key", "", "Shared secret required as ?api_key= (empty disables auth)")

	// Resolution cache and relay
	rootCmd.Flags().Uint64("cache-capacity", config.DefaultCacheCapacity, "Maximum number of cached download links")
	rootCmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL, "Lifetime of a cached download link")
	rootCmd.Flags().Duration("lock-ttl", config.DefaultLockTTL, "Lifetime of an idle per-link resolution lock")
	rootCmd.Flags().Duration("relay-timeout", config.DefaultRelayTimeout, "Maximum wait for the content host response")
	rootCmd.Flags().Duration("resolver-timeout", config.DefaultResolverTimeout, "Timeout of upstream probes and stream list requests")
	rootCmd.Flags().Float64("bandwidth-limit", 0, "Egress cap in MB/s (0 is unlimited)")

	// Logging
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-file", "", "Log to this file instead of stdout")

	// Relay history
	rootCmd.Flags().String("db-host", "", "PostgreSQL host for relay history (empty disables it)")
	rootCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	rootCmd.Flags().String("db-name", "debridrelay", "PostgreSQL database")
	rootCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	rootCmd.Flags().String("db-password", "", "PostgreSQL password")
	rootCmd.Flags().String("db-sslmode", "disable", "PostgreSQL sslmode")

	// Bind all flags to viper
	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		utils.ErrorLog("Error binding PFlags to viper: %v", err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if os.Getenv("NODE_ENV") != "production" {
		if err := godotenv.Load(); err == nil {
			utils.InfoLog("Loaded environment from .env")
		}
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory and current directory
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".debrid-relay")
	}

	// Replace hyphens with underscores in environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Read environment variables
	viper.AutomaticEnv()

	// Read in config file if found
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
