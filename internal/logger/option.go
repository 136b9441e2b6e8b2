package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// echoCore lets entries at or above floor through regardless of the level
// the wrapped core was built with.
type echoCore struct {
	zapcore.Core

	floor zapcore.Level
}

func (c *echoCore) Enabled(l zapcore.Level) bool {
	return c.floor.Enabled(l)
}

//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *echoCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}

	return ce.AddCore(ent, c)
}

// With keeps the floor on derived cores.
//
//nolint:ireturn,nolintlint // zapcore.Core is what zap expects here.
func (c *echoCore) With(fields []zapcore.Field) zapcore.Core {
	return &echoCore{Core: c.Core.With(fields), floor: c.floor}
}

// Echo returns a logger named name for mirroring the output of the managed
// application. It logs at debug level even when the supervisor runs quieter,
// so verbose mode shows every startup line.
func Echo(ctx context.Context, name string) *zap.SugaredLogger {
	wrap := zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &echoCore{Core: core, floor: zapcore.DebugLevel}
	})

	return FromContext(ctx).Desugar().WithOptions(wrap).Sugar().Named(name)
}
