package main

import (
	"context"
	"fmt"

	"better-share/internal/plugin"
	"better-share/internal/sharing"
	"better-share/pkg/logger"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var urlStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("42")).
	Underline(true)

func newShareCmd(opts *options) *cobra.Command {
	var (
		shareID string
		noCopy  bool
	)

	cmd := &cobra.Command{
		Use:   "share <session-id>",
		Short: "Share a session and print its public URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			m, _, err := opts.newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.requestTimeout())
			defer cancel()

			id := shareID
			if id == "" {
				id = sharing.DeriveShareID(sessionID)
			}
			url, err := m.CreateShare(ctx, sessionID, id)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), urlStyle.Render(url))
			if opts.cfg.Client.Clipboard && !noCopy {
				if err := (plugin.SystemClipboard{}).WriteText(url); err != nil {
					logger.L.Warn("Failed to copy share URL", zap.Error(err))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&shareID, "id", "", "Share id to use (default: last 8 characters of the session id)")
	cmd.Flags().BoolVar(&noCopy, "no-copy", false, "Do not copy the URL to the clipboard")
	return cmd
}

func newUnshareCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unshare <session-id>",
		Short: "Delete the shared copy of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := opts.newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.requestTimeout())
			defer cancel()

			if err := m.RemoveShare(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unshared %s\n", args[0])
			return nil
		},
	}
}
