/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	JSONFormat    = "json"
	ConsoleFormat = "console"
)

// Config drives the process-wide logging setup
type Config struct {
	Level  string
	Format string
	// File, when set, sends the output to a size-rotated file instead of stderr
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	activeCore atomic.Pointer[zapcore.Core]
)

func init() {
	core := newCore(Config{Format: ConsoleFormat}, zapcore.Lock(os.Stderr))
	activeCore.Store(&core)
}

// Init replaces the active logging backend. Loggers obtained earlier switch over immediately.
func Init(cfg Config) error {
	if len(cfg.Level) != 0 {
		if err := SetLevel(cfg.Level); err != nil {
			return err
		}
	}
	switch cfg.Format {
	case "", JSONFormat, ConsoleFormat:
	default:
		return errors.Errorf("unknown log format [%s]", cfg.Format)
	}

	var ws zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if len(cfg.File) != 0 {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	core := newCore(cfg, ws)
	activeCore.Store(&core)
	return nil
}

// SetLevel changes the minimum enabled level of every logger
func SetLevel(l string) error {
	lvl, err := zapcore.ParseLevel(l)
	if err != nil {
		return errors.Wrapf(err, "invalid log level [%s]", l)
	}
	level.SetLevel(lvl)
	return nil
}

// Sync flushes buffered entries
func Sync() error {
	return (*activeCore.Load()).Sync()
}

func newCore(cfg Config, ws zapcore.WriteSyncer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, ws, level)
}

// proxyCore forwards to whatever core is active at write time
type proxyCore struct {
	fields []zapcore.Field
}

func (c *proxyCore) current() zapcore.Core {
	core := *activeCore.Load()
	if len(c.fields) != 0 {
		return core.With(c.fields)
	}
	return core
}

func (c *proxyCore) Enabled(l zapcore.Level) bool {
	return level.Enabled(l)
}

func (c *proxyCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	return &proxyCore{fields: append(merged, fields...)}
}

func (c *proxyCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.current().Check(e, ce)
}

func (c *proxyCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.current().Write(e, fields)
}

func (c *proxyCore) Sync() error {
	return c.current().Sync()
}
