package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage joined hosts",
}

var hostsAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Join a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := registry.AddHost(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("joined %s (%s mode)\n", info.Name, info.Mode)
		return nil
	},
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List joined hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, pair := range registry.Pairs() {
			fmt.Printf("%-40s %-24s %s\n", pair.Host.URL, pair.Host.Name, pair.Stream.State())
		}
		return nil
	},
}

var hostsRemoveCmd = &cobra.Command{
	Use:   "remove <url>",
	Short: "Leave a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry.RemoveHost(args[0])
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in on the primary host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		primary := registry.Primary()
		if primary == nil {
			return fmt.Errorf("no primary_url configured")
		}

		fmt.Fprint(os.Stderr, "password: ")
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return err
		}

		session, err := primary.API.Login(cmd.Context(), args[0], strings.TrimSpace(password))
		if err != nil {
			return err
		}
		if err := store.SetPreference(tokenKey, session.Token); err != nil {
			return err
		}
		registry.ConnectAll(session.Token)
		fmt.Printf("logged in as %s\n", session.User.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the session and disconnect everything",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry.DisconnectAll()
		return store.SetPreference(tokenKey, "")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show client identity and connection state",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := store.DeviceID()
		if err != nil {
			return err
		}
		fmt.Printf("device %s\n", id)
		if origin := registry.PrimaryOrigin(); origin != "" {
			fmt.Printf("primary %s\n", origin)
		}
		for _, pair := range registry.Pairs() {
			fmt.Printf("%s: %s\n", pair.Host.URL, pair.Stream.State())
		}
		return nil
	},
}

func init() {
	hostsCmd.AddCommand(hostsAddCmd, hostsListCmd, hostsRemoveCmd)
	rootCmd.AddCommand(hostsCmd, loginCmd, logoutCmd, statusCmd)
}
