package log

import (
	"fmt"
	"log"
	"os"
)

// Level 日志级别
type Level int

// Levels
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger 日志接口，通过 SetLogger 可替换默认实现
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

var logger Logger = &defaultLogger{
	level: LevelInfo,
	log:   log.New(os.Stderr, "", log.LstdFlags),
}

// SetLogger 替换默认 Logger
func SetLogger(l Logger) {
	if l != nil {
		logger = l
	}
}

// SetLevel 设置默认 Logger 的日志级别，自定义 Logger 不受影响
func SetLevel(level Level) {
	if l, ok := logger.(*defaultLogger); ok {
		l.level = level
	}
}

// Debug ...
func Debug(args ...interface{}) { logger.Debug(args...) }

// Debugf ...
func Debugf(format string, args ...interface{}) { logger.Debugf(format, args...) }

// Info ...
func Info(args ...interface{}) { logger.Info(args...) }

// Infof ...
func Infof(format string, args ...interface{}) { logger.Infof(format, args...) }

// Warn ...
func Warn(args ...interface{}) { logger.Warn(args...) }

// Warnf ...
func Warnf(format string, args ...interface{}) { logger.Warnf(format, args...) }

// Error ...
func Error(args ...interface{}) { logger.Error(args...) }

// Errorf ...
func Errorf(format string, args ...interface{}) { logger.Errorf(format, args...) }

type defaultLogger struct {
	level Level
	log   *log.Logger
}

func (l *defaultLogger) output(level Level, prefix, msg string) {
	if level < l.level {
		return
	}
	// 调用链：包级函数 → Logger 方法 → output
	_ = l.log.Output(4, prefix+msg)
}

func (l *defaultLogger) Debug(args ...interface{}) {
	l.output(LevelDebug, "[DEBUG] ", fmt.Sprint(args...))
}

func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	l.output(LevelDebug, "[DEBUG] ", fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Info(args ...interface{}) {
	l.output(LevelInfo, "[INFO] ", fmt.Sprint(args...))
}

func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.output(LevelInfo, "[INFO] ", fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Warn(args ...interface{}) {
	l.output(LevelWarn, "[WARN] ", fmt.Sprint(args...))
}

func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.output(LevelWarn, "[WARN] ", fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Error(args ...interface{}) {
	l.output(LevelError, "[ERROR] ", fmt.Sprint(args...))
}

func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.output(LevelError, "[ERROR] ", fmt.Sprintf(format, args...))
}
