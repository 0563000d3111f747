package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ItsKorayYT/antarcticom/client"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List servers across all joined hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := client.NewDirectory(registry)
		if err := dir.Fetch(cmd.Context()); err != nil {
			return err
		}
		for _, s := range dir.Servers() {
			fmt.Printf("%-20s %-24s %s\n", s.ID, s.Name, s.Host)
		}
		return nil
	},
}

var tailHost string

var tailCmd = &cobra.Command{
	Use:   "tail <channel-id>",
	Short: "Stream a channel's messages to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pair := registry.Pair(tailHost)
		if pair == nil {
			pair = registry.Primary()
		}
		if pair == nil {
			return fmt.Errorf("no host to tail from; pass --host or configure primary_url")
		}

		view := client.NewMessageView(pair.Host.URL, pair.API, store)
		if err := view.Open(cmd.Context(), args[0]); err != nil {
			return err
		}
		for _, m := range view.Messages() {
			printMessage(m.AuthorID, m.Content, m.Deleted)
		}

		sub := pair.Stream.Subscribe()
		defer sub.Close()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case <-sigCh:
				return nil
			case ev, ok := <-sub.Events():
				if !ok {
					return nil
				}
				view.Apply(ev)
				if ev.Message != nil && ev.Message.ChannelID == args[0] {
					printMessage(ev.Message.AuthorID, ev.Message.Content, false)
				}
			}
		}
	},
}

func printMessage(author, content string, deleted bool) {
	if deleted {
		content = "(deleted)"
	}
	fmt.Printf("<%s> %s\n", author, content)
}

func init() {
	tailCmd.Flags().StringVar(&tailHost, "host", "", "host to tail from (defaults to primary)")
	rootCmd.AddCommand(serversCmd, tailCmd)
}
