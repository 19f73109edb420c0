package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 全局日志记录器实例，初始化之前是一个不输出的 no-op 记录器
var L = zap.NewNop()

// `level`可以是“debug”、“info”、“warn”、“error”、“fatal”、“panic”。
// `isProduction`确定日志记录器是否使用JSON格式(生产)或控制台格式(开发)。
func InitLogger(level string, isProduction bool) error {
	l, err := New(level, isProduction)
	if err != nil {
		return err
	}
	L = l
	L.Info("Zap logger initialized", zap.String("level", l.Level().String()), zap.Bool("productionMode", isProduction))
	return nil
}

// New 构建一个日志记录器但不替换全局实例
func New(level string, isProduction bool) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel // 如果解析失败，则默认为Info级别
		fmt.Fprintf(os.Stderr, "Warning: Invalid log level '%s', using default 'info'. Error: %v\n", level, err)
	}

	var config zap.Config
	if isProduction {
		// 生产日志记录器：JSON格式
		config = zap.NewProductionConfig()
	} else {
		// 开发日志记录器：人类可读的控制台格式
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // 彩色级别输出
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	// 客户端(bridge)通过stdout传递数据，日志统一写到stderr
	config.OutputPaths = []string{"stderr"}

	l, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize zap logger: %w", err)
	}
	return l, nil
}

// Sync刷新任何缓冲的日志条目。
// 建议在应用程序退出之前调用它。
func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}
