// bettershare 是分享客户端：分享、取消分享、查看状态，以及作为宿主工具插件运行的bridge。
package main

import (
	"fmt"
	"os"
	"time"

	"better-share/internal/client"
	"better-share/internal/errs"
	"better-share/internal/sessionstore"
	"better-share/internal/sharing"
	"better-share/pkg/config"
	"better-share/pkg/logger"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var version = "dev"

var errorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("196"))

// options 是所有子命令共享的全局参数，flag优先于配置文件
type options struct {
	configPath string
	apiURL     string
	storageDir string
	stateFile  string
	verbose    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "bettershare",
		Short: "Share coding-agent sessions through your own share server",
		Long: `bettershare uploads local coding-agent sessions to a share server
and keeps them in sync while they change.

  bettershare share <session-id>      # share a session and print its URL
  bettershare unshare <session-id>    # delete the shared copy
  bettershare status                  # list shared sessions
  bettershare bridge                  # read host events from stdin`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return opts.setup() },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file")
	flags.StringVar(&opts.apiURL, "api-url", "", "Share server base URL (overrides client.api_url)")
	flags.StringVar(&opts.storageDir, "storage-dir", "", "Host tool storage directory (overrides client.storage_dir)")
	flags.StringVar(&opts.stateFile, "state-file", "", "Share records file (overrides client.state_file)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newShareCmd(opts), newUnshareCmd(opts), newStatusCmd(opts), newBridgeCmd(opts))
	return root
}

func (o *options) setup() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.apiURL != "" {
		cfg.Client.APIURL = o.apiURL
	}
	if o.storageDir != "" {
		cfg.Client.StorageDir = o.storageDir
	}
	if o.stateFile != "" {
		cfg.Client.StateFile = o.stateFile
	}
	o.cfg = cfg

	level := cfg.Log.Level
	if o.verbose {
		level = "debug"
	} else if level == "" || level == "info" {
		// 命令行输出里只保留警告以上的日志
		level = "warn"
	}
	return logger.InitLogger(level, cfg.Log.ProductionMode)
}

func (o *options) sessions() (*sessionstore.Store, error) {
	root := o.cfg.Client.StorageDir
	if root == "" {
		var err error
		if root, err = sessionstore.DefaultRoot(); err != nil {
			return nil, err
		}
	}
	return sessionstore.New(root), nil
}

func (o *options) recordStore() (*sharing.FileStore, error) {
	path := o.cfg.Client.StateFile
	if path == "" {
		var err error
		if path, err = sharing.DefaultStatePath(); err != nil {
			return nil, err
		}
	}
	return sharing.NewFileStore(path), nil
}

// newManager 按配置装配分享管理器，调用方负责Close
func (o *options) newManager() (*sharing.Manager, *sessionstore.Store, error) {
	sessions, err := o.sessions()
	if err != nil {
		return nil, nil, err
	}
	store, err := o.recordStore()
	if err != nil {
		return nil, nil, err
	}
	api := client.New(o.cfg.Client.APIURL, o.cfg.Client.RequestTimeout)
	m, err := sharing.NewManager(api, sessions, sharing.Options{
		Debounce: o.cfg.Client.SyncDebounce,
		Store:    store,
	})
	if err != nil {
		return nil, nil, err
	}
	return m, sessions, nil
}

func (o *options) requestTimeout() time.Duration {
	if o.cfg.Client.RequestTimeout > 0 {
		// 创建分享包含预签名、读取和上传三个步骤
		return 3 * o.cfg.Client.RequestTimeout
	}
	return 2 * time.Minute
}

func main() {
	defer logger.Sync()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+errs.Message(err)))
		os.Exit(1)
	}
}
