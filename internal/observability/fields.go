package observability

import "go.uber.org/zap"

// Field aliases so callers outside this package do not import zap directly.
//
//nolint:gochecknoglobals // Intentional re-exports
var (
	String   = zap.String
	Int      = zap.Int
	Bool     = zap.Bool
	Float64  = zap.Float64
	Duration = zap.Duration
	Error    = zap.Error
)
