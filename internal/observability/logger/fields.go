package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field evita que los callers importen zap sólo para armar slices de campos.
type Field = zap.Field

// HTTP

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }

// Auth flow

// Strategy names the authentication strategy (e.g. "twitter").
func Strategy(v string) zap.Field { return zap.String("strategy", v) }

// Phase is "request" or "callback".
func Phase(v string) zap.Field { return zap.String("phase", v) }

// Failure is the failure key reported to the failure endpoint.
func Failure(v string) zap.Field { return zap.String("failure", v) }

func UID(v string) zap.Field      { return zap.String("uid", v) }
func Nickname(v string) zap.Field { return zap.String("nickname", v) }

// System

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// Generic

func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }
