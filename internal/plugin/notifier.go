package plugin

import (
	"fmt"
	"io"
	"os"

	"better-share/pkg/logger"

	"github.com/charmbracelet/lipgloss"
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// DesktopNotifier 发送系统桌面通知
type DesktopNotifier struct {
	AppName string
}

func (n DesktopNotifier) Notify(title, message string) error {
	if n.AppName != "" {
		title = n.AppName + ": " + title
	}
	logger.L.Debug("Sending desktop notification", zap.String("title", title))
	// 图标留空，由beeep使用平台默认值
	return beeep.Notify(title, message, "")
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// TerminalNotifier 把通知写到终端，默认stderr
type TerminalNotifier struct {
	Out io.Writer
}

func (n TerminalNotifier) Notify(title, message string) error {
	out := n.Out
	if out == nil {
		out = os.Stderr
	}
	_, err := fmt.Fprintf(out, "%s %s\n", titleStyle.Render(title), messageStyle.Render(message))
	return err
}

// MultiNotifier 依次通知，返回第一个错误
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(title, message string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(title, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) error { return nil }
