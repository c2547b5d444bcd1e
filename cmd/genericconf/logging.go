// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package genericconf

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ethereum/go-ethereum/log"
)

var globalFileLogger = bufferedFileLogger{}

// bufferedFileLogger drops records instead of blocking the caller once
// BufSize writes are queued behind a slow disk.
type bufferedFileLogger struct {
	writerMutex sync.Mutex
	writer      *lumberjack.Logger

	cancel  context.CancelFunc
	pending chan struct{}
	done    chan struct{}
}

func (l *bufferedFileLogger) Write(p []byte) (int, error) {
	select {
	case l.pending <- struct{}{}:
		l.writerMutex.Lock()
		_, _ = l.writer.Write(p)
		l.writerMutex.Unlock()
		l.done <- struct{}{}
	default:
	}
	return len(p), nil
}

// open is not threadsafe
func (l *bufferedFileLogger) open(config *FileLoggingConfig, filename string) io.Writer {
	_ = l.close()
	l.writer = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		LocalTime:  config.LocalTime,
		Compress:   config.Compress,
	}
	bufSize := max(config.BufSize, 1)
	l.pending = make(chan struct{}, bufSize)
	l.done = make(chan struct{}, bufSize)
	pending, done := l.pending, l.done
	var ctx context.Context
	ctx, l.cancel = context.WithCancel(context.Background())
	go func() {
		for {
			select {
			case <-pending:
				<-done
			case <-ctx.Done():
				return
			}
		}
	}()
	return l
}

// close is not threadsafe
func (l *bufferedFileLogger) close() error {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.writer != nil {
		if err := l.writer.Close(); err != nil {
			return err
		}
		l.writer = nil
	}
	return nil
}

func ParseLogType(logType string) (string, error) {
	switch strings.ToLower(logType) {
	case "plaintext", "terminal":
		return "plaintext", nil
	case "json":
		return "json", nil
	default:
		return "", errors.Errorf("invalid log type %q, must be plaintext or json", logType)
	}
}

func HandlerFromLogType(logType string, output io.Writer) (slog.Handler, error) {
	parsed, err := ParseLogType(logType)
	if err != nil {
		return nil, err
	}
	if parsed == "json" {
		return log.JSONHandler(output), nil
	}
	return log.NewTerminalHandler(output, false), nil
}

// ToSlogLevel accepts the level names the operator has always printed.
func ToSlogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "CRIT", "CRITICAL":
		return log.LevelCrit, nil
	case "ERROR":
		return log.LevelError, nil
	case "WARN", "WARNING":
		return log.LevelWarn, nil
	case "INFO":
		return log.LevelInfo, nil
	case "DEBUG":
		return log.LevelDebug, nil
	case "TRACE":
		return log.LevelTrace, nil
	default:
		return log.LevelInfo, errors.Errorf("invalid log level %q", level)
	}
}

// InitLog installs the default logger. extra, when set, receives every
// record alongside stderr and the optional log file. Not threadsafe.
func InitLog(logType string, logLevel string, fileLoggingConfig *FileLoggingConfig, pathResolver func(string) string, extra io.Writer) error {
	if err := globalFileLogger.close(); err != nil {
		return errors.Wrap(err, "failed to close file writer")
	}
	writers := []io.Writer{os.Stderr}
	if fileLoggingConfig.Enable {
		writers = append(writers, globalFileLogger.open(fileLoggingConfig, pathResolver(fileLoggingConfig.File)))
	}
	if extra != nil {
		writers = append(writers, extra)
	}
	handler, err := HandlerFromLogType(logType, io.MultiWriter(writers...))
	if err != nil {
		return errors.Wrap(err, "error parsing log type when creating handler")
	}
	level, err := ToSlogLevel(logLevel)
	if err != nil {
		return errors.Wrap(err, "error parsing log level")
	}
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(level)
	log.SetDefault(log.NewLogger(glogger))
	return nil
}
