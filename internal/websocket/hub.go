package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"better-share/internal/interfaces"
	"better-share/pkg/logger"

	"go.uber.org/zap"
)

const (
	defaultBroadcastBuffer = 256
	defaultRetryCount      = 3
	defaultRetryInterval   = 100 * time.Millisecond
)

// Hub 在进程内把分享事件分发给对应分享的观看者
type Hub struct {
	clients   map[string]map[interfaces.Watcher]struct{}
	clientsMu sync.RWMutex

	broadcast  chan interfaces.ShareEvent
	register   chan interfaces.Watcher
	unregister chan interfaces.Watcher
	done       chan struct{}
	closeOnce  sync.Once

	retryCount    int
	retryInterval time.Duration
}

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[string]map[interfaces.Watcher]struct{}),
		broadcast:     make(chan interfaces.ShareEvent, defaultBroadcastBuffer),
		register:      make(chan interfaces.Watcher),
		unregister:    make(chan interfaces.Watcher),
		done:          make(chan struct{}),
		retryCount:    defaultRetryCount,
		retryInterval: defaultRetryInterval,
	}
}

func (h *Hub) Register(watcher interfaces.Watcher) {
	select {
	case h.register <- watcher:
	case <-h.done:
		watcher.Close()
	}
}

func (h *Hub) Unregister(watcher interfaces.Watcher) {
	select {
	case h.unregister <- watcher:
	case <-h.done:
	}
}

// Publish 把事件放入广播队列，队列满时丢弃
func (h *Hub) Publish(event interfaces.ShareEvent) error {
	select {
	case h.broadcast <- event:
		logger.L.Debug("Share event queued for broadcast.",
			zap.String("shareID", event.ShareID), zap.String("type", event.Type))
		return nil
	default:
		logger.L.Warn("Hub broadcast channel full. Dropping share event.", zap.String("shareID", event.ShareID))
		return errors.New("hub broadcast channel is full")
	}
}

func (h *Hub) WatcherCount(shareID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[shareID])
}

// Close 停止Run循环并断开所有观看者
func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

func (h *Hub) Run() {
	for {
		select {
		case watcher := <-h.register:
			h.add(watcher)

		case watcher := <-h.unregister:
			h.remove(watcher)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				logger.L.Error("Failed to marshal share event", zap.Error(err))
				continue
			}
			h.deliver(event.ShareID, data)

		case <-h.done:
			h.clientsMu.Lock()
			for _, watchers := range h.clients {
				for watcher := range watchers {
					watcher.Close()
				}
			}
			h.clients = make(map[string]map[interfaces.Watcher]struct{})
			h.clientsMu.Unlock()
			return
		}
	}
}

func (h *Hub) add(watcher interfaces.Watcher) {
	shareID := watcher.GetShareID()
	h.clientsMu.Lock()
	if h.clients[shareID] == nil {
		h.clients[shareID] = make(map[interfaces.Watcher]struct{})
	}
	h.clients[shareID][watcher] = struct{}{}
	h.clientsMu.Unlock()
	logger.L.Info("Watcher registered", zap.String("shareID", shareID))
}

func (h *Hub) remove(watcher interfaces.Watcher) {
	shareID := watcher.GetShareID()
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	watchers, ok := h.clients[shareID]
	if !ok {
		return
	}
	if _, ok := watchers[watcher]; !ok {
		return
	}
	delete(watchers, watcher)
	if len(watchers) == 0 {
		delete(h.clients, shareID)
	}
	watcher.Close()
	logger.L.Info("Watcher unregistered", zap.String("shareID", shareID))
}

func (h *Hub) deliver(shareID string, data []byte) {
	h.clientsMu.RLock()
	targets := make([]interfaces.Watcher, 0, len(h.clients[shareID]))
	for watcher := range h.clients[shareID] {
		targets = append(targets, watcher)
	}
	h.clientsMu.RUnlock()

	for _, watcher := range targets {
		h.trySend(watcher, data)
	}
}

// trySend 发送失败时按间隔重试，全部失败后断开该观看者
func (h *Hub) trySend(watcher interfaces.Watcher, data []byte) {
	if watcher.QueueBytes(data) == nil {
		return
	}
	for i := 0; i < h.retryCount; i++ {
		logger.L.Warn("Watcher send buffer full, retry attempt",
			zap.String("shareID", watcher.GetShareID()),
			zap.Int("attempt", i+1))
		time.Sleep(h.retryInterval)
		if watcher.QueueBytes(data) == nil {
			return
		}
	}
	logger.L.Error("Watcher send buffer still full after retries, closing connection",
		zap.String("shareID", watcher.GetShareID()),
		zap.Int("attempts", h.retryCount))
	h.remove(watcher)
}
