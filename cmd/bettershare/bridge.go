package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"better-share/internal/plugin"
	"better-share/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// 其他CLI进程可能同时分享或取消分享，桥接进程定期重新读取状态文件
const stateRefreshInterval = 2 * time.Second

// refreshShares 定期把管理器与状态文件对齐，直到ctx结束
func refreshShares(ctx context.Context, refresher interface{ Refresh() error }, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresher.Refresh(); err != nil {
				logger.L.Warn("Failed to reload share state", zap.Error(err))
			}
		}
	}
}

func newBridgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Read host-tool events as JSON lines from stdin",
		Long: `bridge is started by the host tool's plugin. It reads one JSON event per
line, handles share/unshare commands and syncs shared sessions when they change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := opts.newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			notifiers := plugin.MultiNotifier{plugin.TerminalNotifier{Out: cmd.ErrOrStderr()}}
			if opts.cfg.Client.Notify {
				notifiers = append(notifiers, plugin.DesktopNotifier{AppName: "Better Share"})
			}
			bridgeOpts := plugin.BridgeOptions{
				Notifier:       notifiers,
				CommandTimeout: opts.requestTimeout(),
			}
			if opts.cfg.Client.Clipboard {
				bridgeOpts.Clipboard = plugin.SystemClipboard{}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go refreshShares(ctx, m, stateRefreshInterval)

			logger.L.Info("Bridge started", zap.String("apiURL", opts.cfg.Client.APIURL), zap.Int("shares", len(m.Shares())))
			err = plugin.NewBridge(m, bridgeOpts).Run(ctx, cmd.InOrStdin())
			if err != nil && ctx.Err() != nil {
				// 收到信号正常退出
				return nil
			}
			return err
		},
	}
}
