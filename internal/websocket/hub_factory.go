package websocket

import (
	"errors"

	"better-share/internal/interfaces"
	"better-share/pkg/config"
	"better-share/pkg/logger"

	"go.uber.org/zap"
)

// CreateHub 根据配置创建相应的Hub实现
func CreateHub(cfg config.MessagingConfig) (interfaces.WatcherHub, error) {
	logger.L.Info("Creating hub with messaging provider", zap.String("provider", cfg.Provider))

	switch cfg.Provider {
	case "channel", "":
		// 创建基于Go通道的Hub
		return NewHub(), nil

	case "kafka":
		// 创建基于Kafka的Hub
		return NewKafkaHub(cfg.Kafka)

	default:
		return nil, errors.New("unsupported messaging provider")
	}
}

// 启动Hub
func StartHub(hub interfaces.WatcherHub) error {
	switch h := hub.(type) {
	case *Hub:
		go h.Run()
		return nil
	case *KafkaHub:
		h.StartConsumer()
		return nil
	default:
		return errors.New("unknown hub type")
	}
}
