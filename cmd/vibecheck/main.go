// Command vibecheck is the client-side CLI that opens a tunnel duplex
// channel to a VibeCheck server, per spec.md §6.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vibecheck/vibecheck/internal/tunnelclient"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vibecheck",
		Short:         "VibeCheck tunnel client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newConnectCmd())
	return root
}

func newConnectCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "connect <port>",
		Short: "Open a tunnel to a local server so VibeCheck's robust scanner can reach it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil || port <= 0 || port > 65535 {
				return fmt.Errorf("invalid port %q", args[0])
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			slog.Info("connecting", "server", serverURL, "target_port", port)
			if err := tunnelclient.Connect(ctx, serverURL, port); err != nil {
				return err
			}
			slog.Info("tunnel closed")
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "ws://localhost:8080/v1/tunnel", "VibeCheck server tunnel WebSocket URL")
	return cmd
}
