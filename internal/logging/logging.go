// Package logging wraps zerolog with the runtime-tunable per-device log
// level. The level is an atomic that control callers may change at any time;
// it is consulted once per log site and takes effect on the next decode
// iteration, never retroactively.
package logging

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Leveled is a zerolog logger whose effective level can be changed after
// construction, concurrently with use.
type Leveled struct {
	base zerolog.Logger
	lvl  atomic.Int32
}

func New(base zerolog.Logger) *Leveled {
	l := &Leveled{base: base}
	l.lvl.Store(int32(base.GetLevel()))
	return l
}

// Logger returns the base logger filtered at the current runtime level.
func (l *Leveled) Logger() zerolog.Logger {
	return l.base.Level(zerolog.Level(l.lvl.Load()))
}

func (l *Leveled) SetLevel(level zerolog.Level) {
	l.lvl.Store(int32(level))
}

func (l *Leveled) Level() zerolog.Level {
	return zerolog.Level(l.lvl.Load())
}
