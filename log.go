package beacon

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface used throughout this module. The default
// implementation wraps logrus; hosts with their own logging plug in here.
type Logger interface {
	Info(...interface{})
	Debug(...interface{})
	Error(...interface{})
	Warn(...interface{})

	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Warnf(string, ...interface{})

	ChildLogger(tags map[string]interface{}) Logger
}

var logger Logger
var loggerMu sync.Mutex

// SetLogger replaces the package logger.
func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// GetLogger returns the package logger, building the logrus-backed
// default on first use.
func GetLogger() Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger == nil {
		logger = buildDefaultLogger()
	}

	return logger
}

// SetLogLevel adjusts the default logger's level from a logrus level
// name ("debug", "trace", ...). It has no effect on custom loggers.
func SetLogLevel(level string) error {
	l := GetLogger()

	lg, ok := l.(*defaultLogger)
	if !ok {
		l.Warn("non-default logger, can't set level")
		return nil
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	lg.Entry.Logger.SetLevel(lvl)
	return nil
}

type defaultLogger struct {
	*logrus.Entry
}

func buildDefaultLogger() Logger {
	l := &logrus.Logger{
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Level:     logrus.InfoLevel,
		Out:       os.Stderr,
		Hooks:     make(logrus.LevelHooks),
	}

	return &defaultLogger{Entry: l.WithFields(map[string]interface{}{})}
}

func (d *defaultLogger) ChildLogger(ff map[string]interface{}) Logger {
	return &defaultLogger{d.Entry.WithFields(ff)}
}
