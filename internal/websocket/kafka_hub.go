package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"better-share/internal/interfaces"
	"better-share/pkg/config"
	"better-share/pkg/logger"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaHub 通过Kafka在多个服务实例之间广播分享事件，每个实例只投递给本地连接的观看者
type KafkaHub struct {
	clients    map[string]map[interfaces.Watcher]struct{}
	clientsMu  sync.RWMutex
	producer   sarama.SyncProducer
	consumer   sarama.ConsumerGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	cfg config.KafkaConfig
}

// 创建一个新的KafkaHub
func NewKafkaHub(cfg config.KafkaConfig) (*KafkaHub, error) {
	// 配置Kafka
	kConfig := sarama.NewConfig()
	kConfig.Producer.RequiredAcks = sarama.WaitForAll
	kConfig.Producer.Return.Successes = true
	kConfig.Producer.Retry.Max = 3
	kConfig.Consumer.Return.Errors = true
	kConfig.Version = sarama.V2_8_0_0

	// 创建生产者
	producer, err := sarama.NewSyncProducer(cfg.Brokers, kConfig)
	if err != nil {
		logger.L.Error("Failed to start Kafka producer", zap.Error(err))
		return nil, fmt.Errorf("failed to start Kafka producer: %w", err)
	}

	// 创建消费者组
	consumer, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, kConfig)
	if err != nil {
		logger.L.Error("Failed to start Kafka consumer group", zap.Error(err))
		producer.Close()
		return nil, fmt.Errorf("failed to start Kafka consumer group: %w", err)
	}

	return newKafkaHub(cfg, producer, consumer), nil
}

func newKafkaHub(cfg config.KafkaConfig, producer sarama.SyncProducer, consumer sarama.ConsumerGroup) *KafkaHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaHub{
		clients:    make(map[string]map[interfaces.Watcher]struct{}),
		producer:   producer,
		consumer:   consumer,
		ctx:        ctx,
		cancelFunc: cancel,
		cfg:        cfg,
	}
}

func (h *KafkaHub) StartConsumer() {
	go h.consumeMessages()
}

// 关闭KafkaHub
func (h *KafkaHub) Close() error {
	h.cancelFunc()

	if err := h.producer.Close(); err != nil {
		logger.L.Error("Failed to close Kafka producer", zap.Error(err))
	}
	if h.consumer != nil {
		if err := h.consumer.Close(); err != nil {
			logger.L.Error("Failed to close Kafka consumer group", zap.Error(err))
		}
	}

	h.clientsMu.Lock()
	for _, watchers := range h.clients {
		for watcher := range watchers {
			watcher.Close()
		}
	}
	h.clients = make(map[string]map[interfaces.Watcher]struct{})
	h.clientsMu.Unlock()
	return nil
}

// Register 在Hub中注册观看者
func (h *KafkaHub) Register(watcher interfaces.Watcher) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	shareID := watcher.GetShareID()
	if h.clients[shareID] == nil {
		h.clients[shareID] = make(map[interfaces.Watcher]struct{})
	}
	h.clients[shareID][watcher] = struct{}{}
	logger.L.Info("Watcher registered with KafkaHub", zap.String("shareID", shareID))
}

// Unregister 从Hub中注销观看者
func (h *KafkaHub) Unregister(watcher interfaces.Watcher) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	shareID := watcher.GetShareID()
	watchers, ok := h.clients[shareID]
	if !ok {
		return
	}
	if _, ok := watchers[watcher]; ok {
		watcher.Close()
		delete(watchers, watcher)
		if len(watchers) == 0 {
			delete(h.clients, shareID)
		}
		logger.L.Info("Watcher unregistered from KafkaHub", zap.String("shareID", shareID))
	}
}

func (h *KafkaHub) WatcherCount(shareID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[shareID])
}

// 构建Kafka主题名称
func (h *KafkaHub) buildTopicName(messageType string) string {
	return fmt.Sprintf("%s_%s", h.cfg.TopicPrefix, messageType)
}

// Publish 把事件写入Kafka，由各实例的消费者投递给本地观看者
func (h *KafkaHub) Publish(event interfaces.ShareEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal share event: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: h.buildTopicName("events"),
		Key:   sarama.StringEncoder(event.ShareID),
		Value: sarama.ByteEncoder(data),
	}

	if _, _, err := h.producer.SendMessage(kafkaMsg); err != nil {
		logger.L.Error("Failed to send share event to Kafka",
			zap.String("shareID", event.ShareID), zap.Error(err))
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	logger.L.Debug("Share event sent to Kafka", zap.String("shareID", event.ShareID))
	return nil
}

// 消费Kafka消息
func (h *KafkaHub) consumeMessages() {
	handler := &kafkaConsumerHandler{hub: h}
	topics := []string{h.buildTopicName("events")}

	for {
		select {
		case <-h.ctx.Done():
			logger.L.Info("Stopping Kafka consumer")
			return
		default:
			if err := h.consumer.Consume(h.ctx, topics, handler); err != nil {
				logger.L.Error("Kafka consumer error", zap.Error(err))
				select {
				case <-h.ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}
}

// Kafka消费者处理器
type kafkaConsumerHandler struct {
	hub *KafkaHub
}

// Setup 实现sarama.ConsumerGroupHandler接口
func (h *kafkaConsumerHandler) Setup(_ sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup 实现sarama.ConsumerGroupHandler接口
func (h *kafkaConsumerHandler) Cleanup(_ sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 实现sarama.ConsumerGroupHandler接口
func (h *kafkaConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.hub.handleEventMessage(message.Value)
		// 标记消息已处理
		session.MarkMessage(message, "")
	}
	return nil
}

// 把事件投递给本地连接的观看者
func (h *KafkaHub) handleEventMessage(data []byte) {
	var event interfaces.ShareEvent
	if err := json.Unmarshal(data, &event); err != nil {
		logger.L.Error("Failed to unmarshal share event", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	targets := make([]interfaces.Watcher, 0, len(h.clients[event.ShareID]))
	for watcher := range h.clients[event.ShareID] {
		targets = append(targets, watcher)
	}
	h.clientsMu.RUnlock()

	for _, watcher := range targets {
		if err := watcher.QueueBytes(data); err != nil {
			logger.L.Warn("Failed to queue share event to watcher",
				zap.String("shareID", event.ShareID), zap.Error(err))
		}
	}
}
