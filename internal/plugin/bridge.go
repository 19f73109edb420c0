// Package plugin 把宿主工具的事件流接到分享管理器上：拦截分享命令，并在会话变化时触发同步。
package plugin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"better-share/internal/errs"
	"better-share/internal/sharing"
	"better-share/pkg/logger"

	"go.uber.org/zap"
)

// 宿主工具的事件类型
const (
	EventCommandExecuted    = "command.executed"
	EventSessionUpdated     = "session.updated"
	EventSessionDeleted     = "session.deleted"
	EventMessageUpdated     = "message.updated"
	EventMessagePartUpdated = "message.part.updated"
)

const (
	CommandShare   = "share"
	CommandUnshare = "unshare"

	defaultCommandTimeout = 2 * time.Minute
	// 单行事件的上限，消息内容可能很长
	maxEventLine = 16 << 20
)

// Sharer 是桥接需要的分享操作，由sharing.Manager实现
type Sharer interface {
	CreateShare(ctx context.Context, sessionID, shareID string) (string, error)
	RemoveShare(ctx context.Context, sessionID string) error
	QueueSync(sessionID string)
	HandleSessionDeleted(ctx context.Context, sessionID string) error
}

type Notifier interface {
	Notify(title, message string) error
}

type Clipboard interface {
	WriteText(text string) error
}

// Event 是宿主工具发出的一条事件
type Event struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

type eventProperties struct {
	SessionID string `json:"sessionID"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Info      *struct {
		ID        string `json:"id"`
		SessionID string `json:"sessionID"`
	} `json:"info"`
	Part *struct {
		SessionID string `json:"sessionID"`
	} `json:"part"`
}

// sessionID 依次从顶层、part、info中查找会话ID。session.*事件的info就是会话本身
func (p *eventProperties) sessionID(eventType string) string {
	if p.SessionID != "" {
		return p.SessionID
	}
	if p.Part != nil && p.Part.SessionID != "" {
		return p.Part.SessionID
	}
	if p.Info != nil {
		if p.Info.SessionID != "" {
			return p.Info.SessionID
		}
		if strings.HasPrefix(eventType, "session.") {
			return p.Info.ID
		}
	}
	return ""
}

type BridgeOptions struct {
	Notifier Notifier
	// 为nil时不复制分享链接
	Clipboard      Clipboard
	CommandTimeout time.Duration
}

// Bridge 消费事件并调用分享管理器，事件循环本身从不等待网络
type Bridge struct {
	shares    Sharer
	notifier  Notifier
	clipboard Clipboard
	timeout   time.Duration

	wg sync.WaitGroup
}

func NewBridge(shares Sharer, opts BridgeOptions) *Bridge {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	return &Bridge{
		shares:    shares,
		notifier:  opts.Notifier,
		clipboard: opts.Clipboard,
		timeout:   opts.CommandTimeout,
	}
}

// Run 逐行读取JSON事件直到输入结束或ctx取消。无法解析的行只记录日志
func (b *Bridge) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventLine)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			logger.L.Warn("Skipping malformed event", zap.Error(err))
			continue
		}
		b.HandleEvent(ctx, event)
	}

	b.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	return ctx.Err()
}

// HandleEvent 分发一条事件。分享和取消分享在单独的goroutine中执行
func (b *Bridge) HandleEvent(ctx context.Context, event Event) {
	var props eventProperties
	if len(event.Properties) > 0 {
		if err := json.Unmarshal(event.Properties, &props); err != nil {
			logger.L.Warn("Skipping event with malformed properties", zap.String("type", event.Type), zap.Error(err))
			return
		}
	}
	sessionID := props.sessionID(event.Type)

	switch event.Type {
	case EventCommandExecuted:
		if sessionID == "" {
			return
		}
		switch props.Name {
		case CommandShare:
			shareID := strings.TrimSpace(props.Arguments)
			if shareID == "" {
				shareID = sharing.DeriveShareID(sessionID)
			}
			b.goCommand(ctx, func(ctx context.Context) { b.share(ctx, sessionID, shareID) })
		case CommandUnshare:
			b.goCommand(ctx, func(ctx context.Context) { b.unshare(ctx, sessionID) })
		}

	case EventSessionUpdated, EventMessageUpdated, EventMessagePartUpdated:
		if sessionID != "" {
			b.shares.QueueSync(sessionID)
		}

	case EventSessionDeleted:
		if sessionID != "" {
			b.goCommand(ctx, func(ctx context.Context) {
				_ = b.shares.HandleSessionDeleted(ctx, sessionID)
			})
		}
	}
}

// Wait 等待所有进行中的命令结束
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) goCommand(parent context.Context, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), b.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (b *Bridge) share(ctx context.Context, sessionID, shareID string) {
	url, err := b.shares.CreateShare(ctx, sessionID, shareID)
	if err != nil {
		b.notify("Share failed", failureMessage(err, "Failed to share session"))
		return
	}

	message := url
	if b.clipboard != nil {
		if err := b.clipboard.WriteText(url); err != nil {
			logger.L.Warn("Failed to copy share URL", zap.Error(err))
		} else {
			message = url + " (copied to clipboard)"
		}
	}
	b.notify("Session shared", message)
}

func (b *Bridge) unshare(ctx context.Context, sessionID string) {
	if err := b.shares.RemoveShare(ctx, sessionID); err != nil {
		b.notify("Unshare failed", failureMessage(err, "Failed to unshare session"))
		return
	}
	b.notify("Session unshared", "The share link no longer works")
}

func (b *Bridge) notify(title, message string) {
	if err := b.notifier.Notify(title, message); err != nil {
		logger.L.Warn("Failed to send notification", zap.String("title", title), zap.Error(err))
	}
}

// failureMessage 优先展示服务端或管理器给出的消息
func failureMessage(err error, fallback string) string {
	if msg := errs.Message(err); msg != "" {
		return msg
	}
	return fallback
}
