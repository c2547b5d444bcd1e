// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package status

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// LogFunc receives every rendered log line with its level.
type LogFunc func(level slog.Level, line string)

// Reporter writes to the node logger and mirrors each line to the embedding
// application. The zero value and a nil *Reporter both log to the default
// logger only.
type Reporter struct {
	logger log.Logger
	sink   LogFunc
}

func NewReporter(logger log.Logger, sink LogFunc) *Reporter {
	return &Reporter{logger: logger, sink: sink}
}

func (r *Reporter) Debug(msg string, ctx ...interface{}) { r.write(log.LevelDebug, msg, ctx) }
func (r *Reporter) Info(msg string, ctx ...interface{})  { r.write(log.LevelInfo, msg, ctx) }
func (r *Reporter) Warn(msg string, ctx ...interface{})  { r.write(log.LevelWarn, msg, ctx) }
func (r *Reporter) Error(msg string, ctx ...interface{}) { r.write(log.LevelError, msg, ctx) }

func (r *Reporter) write(level slog.Level, msg string, ctx []interface{}) {
	logger := log.Root()
	var sink LogFunc
	if r != nil {
		if r.logger != nil {
			logger = r.logger
		}
		sink = r.sink
	}
	logger.Write(level, msg, ctx...)
	if sink != nil {
		sink(level, Render(msg, ctx...))
	}
}

// Render formats a message and its key/value context on one line.
func Render(msg string, ctx ...interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(ctx); i += 2 {
		b.WriteByte(' ')
		if i+1 == len(ctx) {
			fmt.Fprintf(&b, "%v", ctx[i])
			break
		}
		fmt.Fprintf(&b, "%v=%v", ctx[i], ctx[i+1])
	}
	return b.String()
}
