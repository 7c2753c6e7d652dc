// Package obslog is the structured logging façade shared by every tier
// of the sensorfw client pipeline. It follows the teacher repository's
// own convention (see eventloop's logging.go) of a package-level,
// lazily-configured logger appropriate for a cross-cutting
// infrastructure concern, but backs it with the richer logiface/stumpy
// stack used throughout the rest of this author's ecosystem rather than
// a bespoke implementation.
package obslog

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Level re-exports logiface.Level so callers don't need the logiface
// import just to call SetLevel.
type Level = logiface.Level

// Level constants re-exported for SiteCache callers that need to name a
// level without importing logiface directly.
const (
	LevelEmergency     = logiface.LevelEmergency
	LevelAlert         = logiface.LevelAlert
	LevelCritical      = logiface.LevelCritical
	LevelError         = logiface.LevelError
	LevelWarning       = logiface.LevelWarning
	LevelNotice        = logiface.LevelNotice
	LevelInformational = logiface.LevelInformational
	LevelDebug         = logiface.LevelDebug
	LevelTrace         = logiface.LevelTrace
)

var (
	mu         sync.RWMutex
	logger     = defaultLogger()
	generation atomic.Uint64
)

func defaultLogger() *logiface.Logger[*stumpy.Event] {
	return stumpy.L.New(
		stumpy.L.WithWriter(logiface.WriterFunc[*stumpy.Event](func(e *stumpy.Event) error {
			_, err := os.Stderr.Write(append(e.Bytes(), '\n'))
			return err
		})),
		stumpy.L.WithLevel(logiface.LevelInformational),
	)
}

// L returns the current process-wide logger. Safe for concurrent use.
func L() *logiface.Logger[*stumpy.Event] {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLevel reconfigures the minimum logged level and bumps the
// generation counter, invalidating every outstanding *SiteCache.
func SetLevel(level Level) {
	mu.Lock()
	logger = stumpy.L.New(
		stumpy.L.WithWriter(logiface.WriterFunc[*stumpy.Event](func(e *stumpy.Event) error {
			_, err := os.Stderr.Write(append(e.Bytes(), '\n'))
			return err
		})),
		stumpy.L.WithLevel(level),
	)
	mu.Unlock()
	generation.Add(1)
}

// SetWriter replaces the output sink, keeping the current level, and
// bumps the generation counter.
func SetWriter(w logiface.Writer[*stumpy.Event]) {
	mu.Lock()
	lvl := logger.Level()
	logger = stumpy.L.New(
		stumpy.L.WithWriter(w),
		stumpy.L.WithLevel(lvl),
	)
	mu.Unlock()
	generation.Add(1)
}

// Generation returns the current configuration generation, bumped by
// every SetLevel/SetWriter call.
func Generation() uint64 {
	return generation.Load()
}
