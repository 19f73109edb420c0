package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"better-share/internal/interfaces"
	"better-share/pkg/config"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWatcher 记录收到的消息
type fakeWatcher struct {
	shareID string
	full    bool

	mu       sync.Mutex
	received [][]byte
	closed   bool
}

func (w *fakeWatcher) GetShareID() string { return w.shareID }

func (w *fakeWatcher) QueueBytes(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.full {
		return errors.New("full")
	}
	w.received = append(w.received, data)
	return nil
}

func (w *fakeWatcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *fakeWatcher) messages() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.received...)
}

func (w *fakeWatcher) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	hub.retryInterval = time.Millisecond
	go hub.Run()
	t.Cleanup(func() { hub.Close() })
	return hub
}

func TestHubDeliversOnlyToWatchersOfTheShare(t *testing.T) {
	hub := startHub(t)

	a1 := &fakeWatcher{shareID: "a"}
	a2 := &fakeWatcher{shareID: "a"}
	b := &fakeWatcher{shareID: "b"}
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)
	require.Eventually(t, func() bool { return hub.WatcherCount("a") == 2 && hub.WatcherCount("b") == 1 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(interfaces.ShareEvent{Type: interfaces.EventUploaded, ShareID: "a", Timestamp: 42}))

	require.Eventually(t, func() bool { return len(a1.messages()) == 1 && len(a2.messages()) == 1 },
		time.Second, 5*time.Millisecond)
	assert.Empty(t, b.messages())

	var event interfaces.ShareEvent
	require.NoError(t, json.Unmarshal(a1.messages()[0], &event))
	assert.Equal(t, interfaces.EventUploaded, event.Type)
	assert.Equal(t, int64(42), event.Timestamp)
}

func TestHubUnregister(t *testing.T) {
	hub := startHub(t)

	w := &fakeWatcher{shareID: "a"}
	hub.Register(w)
	require.Eventually(t, func() bool { return hub.WatcherCount("a") == 1 }, time.Second, 5*time.Millisecond)

	hub.Unregister(w)
	require.Eventually(t, func() bool { return hub.WatcherCount("a") == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.isClosed())
}

func TestHubDropsWatcherWithFullBuffer(t *testing.T) {
	hub := startHub(t)

	w := &fakeWatcher{shareID: "a", full: true}
	hub.Register(w)
	require.Eventually(t, func() bool { return hub.WatcherCount("a") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(interfaces.ShareEvent{Type: interfaces.EventDeleted, ShareID: "a"}))
	require.Eventually(t, func() bool { return hub.WatcherCount("a") == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.isClosed())
}

func TestHubCloseDisconnectsWatchers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	w := &fakeWatcher{shareID: "a"}
	hub.Register(w)
	require.NoError(t, hub.Close())
	require.Eventually(t, w.isClosed, time.Second, 5*time.Millisecond)

	// Watchers registered after close are disconnected too
	late := &fakeWatcher{shareID: "a"}
	hub.Register(late)
	require.Eventually(t, late.isClosed, time.Second, 5*time.Millisecond)
}

func TestWebSocketWatcherReceivesEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := startHub(t)

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	router := gin.New()
	router.GET("/live/:id", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := NewClient(c.Param("id"), conn, hub)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	})
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/live/abc"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.WatcherCount("abc") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Publish(interfaces.ShareEvent{Type: interfaces.EventPresigned, ShareID: "abc"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	assert.Contains(t, string(data), `"type":"presigned"`)

	// Closing the connection unregisters the watcher
	conn.Close()
	require.Eventually(t, func() bool { return hub.WatcherCount("abc") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestKafkaHubPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "test_events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "abc" {
			return errors.New("event must be keyed by share id")
		}
		return nil
	})

	hub := newKafkaHub(config.KafkaConfig{TopicPrefix: "test"}, producer, nil)
	defer hub.Close()

	assert.NoError(t, hub.Publish(interfaces.ShareEvent{Type: interfaces.EventCreated, ShareID: "abc"}))
}

func TestKafkaHubPublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	hub := newKafkaHub(config.KafkaConfig{TopicPrefix: "test"}, producer, nil)
	defer hub.Close()

	assert.Error(t, hub.Publish(interfaces.ShareEvent{Type: interfaces.EventCreated, ShareID: "abc"}))
}

func TestKafkaHubHandleEventMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	hub := newKafkaHub(config.KafkaConfig{TopicPrefix: "test"}, producer, nil)
	defer hub.Close()

	a := &fakeWatcher{shareID: "a"}
	b := &fakeWatcher{shareID: "b"}
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 1, hub.WatcherCount("a"))

	hub.handleEventMessage([]byte(`{"type":"deleted","shareId":"a","timestamp":1}`))
	hub.handleEventMessage([]byte(`not json`))

	require.Len(t, a.messages(), 1)
	assert.Empty(t, b.messages())

	hub.Unregister(a)
	assert.Equal(t, 0, hub.WatcherCount("a"))
	assert.True(t, a.isClosed())
}

func TestCreateHub(t *testing.T) {
	hub, err := CreateHub(config.MessagingConfig{Provider: "channel"})
	require.NoError(t, err)
	require.NoError(t, StartHub(hub))
	assert.NoError(t, hub.Close())

	_, err = CreateHub(config.MessagingConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}
