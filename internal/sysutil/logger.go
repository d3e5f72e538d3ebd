package sysutil

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger
var LogSugar *zap.SugaredLogger

// InitLogger 初始化全局日志，verbose 打开 Debug 级别
func InitLogger(verbose bool) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // 格式化时间输出
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // 彩色级别

	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	// 输出到控制台，带颜色和行号
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(config.EncoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)
	Log = zap.New(core, zap.AddCaller())
	LogSugar = Log.Sugar()
}
