package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 封装zap日志器，提供交易域的结构化日志入口
type Logger struct {
	*zap.Logger
	config Config
	level  zap.AtomicLevel
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	parsed, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	level := zap.NewAtomicLevelAt(parsed)

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cores := []zapcore.Core{}

	if contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		fileWriter, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(fileWriter),
			level,
		))
	}

	// 错误日志单独文件
	if cfg.ErrorFile != "" {
		errorWriter, err := os.OpenFile(cfg.ErrorFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(errorWriter),
			zapcore.ErrorLevel,
		))
	}

	core := zapcore.NewTee(cores...)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		Logger: zapLogger,
		config: cfg,
		level:  level,
	}, nil
}

// SetLevel 运行时调整日志级别（配置热更新唯一允许触碰的字段）
func (l *Logger) SetLevel(levelStr string) error {
	parsed, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", levelStr, err)
	}
	l.level.SetLevel(parsed)
	return nil
}

// LogOrder 记录订单生命周期事件
func (l *Logger) LogOrder(event, orderID, symbol string, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("event", event),
		zap.String("order_id", orderID),
		zap.String("symbol", symbol),
	}
	l.Info("order_event", append(base, fields...)...)
}

// LogTrade 记录成交/平仓事件
func (l *Logger) LogTrade(event, symbol string, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("event", event),
		zap.String("symbol", symbol),
	}
	l.Info("trade_event", append(base, fields...)...)
}

// LogSignal 记录信号处理结果
func (l *Logger) LogSignal(symbol, direction, outcome string, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("symbol", symbol),
		zap.String("direction", direction),
		zap.String("outcome", outcome),
	}
	l.Info("signal_event", append(base, fields...)...)
}

// LogRisk 记录风控事件
func (l *Logger) LogRisk(event string, fields ...zap.Field) {
	l.Warn("risk_event", append([]zap.Field{zap.String("event", event)}, fields...)...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
