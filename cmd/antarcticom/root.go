package main

import (
	goflag "flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ItsKorayYT/antarcticom/client"
	"github.com/ItsKorayYT/antarcticom/internal/db"
)

const tokenKey = "session_token"

var (
	store    *db.Store
	registry *client.Registry
)

var rootCmd = &cobra.Command{
	Use:   "antarcticom",
	Short: "Terminal front for the antarcticom sync core",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

func init() {
	// glog registers its flags on the standard flag set.
	rootCmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)

	viper.SetDefault("primary_url", "")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(filepath.Join(xdg.ConfigHome, "antarcticom"))
	viper.SetEnvPrefix("antarcticom")
	viper.AutomaticEnv()
}

func setup() error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	dataDir := filepath.Join(xdg.DataHome, "antarcticom")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var err error
	store, err = db.Open(filepath.Join(dataDir, "client.db"))
	if err != nil {
		return err
	}

	registry, err = client.NewRegistry(client.Options{
		Store:      store,
		PrimaryURL: viper.GetString("primary_url"),
		OnCredentialInvalid: func() {
			fmt.Fprintln(os.Stderr, "session expired, run `antarcticom login`")
		},
	})
	if err != nil {
		return err
	}
	if err := registry.RestoreHosts(); err != nil {
		return err
	}

	if token, err := store.Preference(tokenKey); err == nil && token != "" {
		registry.SetCredential(token)
	}
	return nil
}
