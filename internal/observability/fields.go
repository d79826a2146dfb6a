package observability

import (
	"time"

	"go.uber.org/zap"
)

// Thin aliases over zap's field constructors so call sites depend on this
// package rather than importing zap everywhere.

func String(key, value string) zap.Field { return zap.String(key, value) }

func Int(key string, value int) zap.Field { return zap.Int(key, value) }

func Int64(key string, value int64) zap.Field { return zap.Int64(key, value) }

func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }

func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }

func Duration(key string, value time.Duration) zap.Field { return zap.Duration(key, value) }

func Error(err error) zap.Field { return zap.Error(err) }
