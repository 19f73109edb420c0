package interfaces

// 分享事件类型
const (
	EventCreated   = "created"
	EventPresigned = "presigned"
	EventUploaded  = "uploaded"
	EventDeleted   = "deleted"
)

// ShareEvent 推送给正在观看某个分享的客户端
type ShareEvent struct {
	Type      string `json:"type"`
	ShareID   string `json:"shareId"`
	Timestamp int64  `json:"timestamp"`
}

// 一个观看分享的websocket连接
// websocket.Client实现
type Watcher interface {
	GetShareID() string
	QueueBytes(data []byte) error
	Close()
}

// 定义了发布分享事件的接口
// service.ShareService 通过它通知观看者
type EventPublisher interface {
	Publish(event ShareEvent) error
}

// 管理观看者连接并分发事件
// websocket.Hub / websocket.KafkaHub实现
type WatcherHub interface {
	EventPublisher
	Register(watcher Watcher)
	Unregister(watcher Watcher)
	WatcherCount(shareID string) int
	Close() error
}
