package websocket

import (
	"errors"
	"sync"
	"time"

	"better-share/internal/interfaces"
	"better-share/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // 写超时
	pongWait       = 60 * time.Second    // 等待pong的最大时间
	pingPeriod     = (pongWait * 9) / 10 // 发送ping的周期
	maxMessageSize = 512                 // 观看者只发送控制帧
	sendBufferSize = 64
)

var errSendBufferFull = errors.New("client send buffer is full")

// Client 是观看某个分享的websocket连接
type Client struct {
	ShareID string
	Conn    *websocket.Conn
	Send    chan []byte

	mu        sync.Mutex
	closed    bool
	manager   interfaces.WatcherHub
	closeOnce sync.Once
}

func NewClient(shareID string, conn *websocket.Conn, manager interfaces.WatcherHub) *Client {
	return &Client{
		ShareID: shareID,
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		manager: manager,
	}
}

func (c *Client) GetShareID() string {
	return c.ShareID
}

// QueueBytes 非阻塞地把消息放入发送队列
func (c *Client) QueueBytes(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("client is closed")
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close 关闭发送队列，WritePump随后发送close帧并退出
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.Send)
		c.mu.Unlock()
	})
}

// ReadPump 只处理控制帧，连接断开时注销
func (c *Client) ReadPump() {
	defer func() {
		c.manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.L.Warn("Unexpected websocket close", zap.String("shareID", c.ShareID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Send 通道已关闭
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.L.Debug("Failed to write share event", zap.String("shareID", c.ShareID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.L.Debug("Failed to send ping", zap.String("shareID", c.ShareID), zap.Error(err))
				return
			}
		}
	}
}
