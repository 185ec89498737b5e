package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook points the reported caller at the call site outside of
// logrus and this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	// skip runtime.Callers, Fire, and the logrus hook dispatch
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fn := frame.Function
		if !strings.Contains(fn, "sirupsen/logrus") && !strings.Contains(fn, "bookfeed/logger.") {
			entry.Caller = &frame
			break
		}
		if !more {
			break
		}
	}
	return nil
}
