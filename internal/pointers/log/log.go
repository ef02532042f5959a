package log

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"pointers/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	closer      *logging.LoggerCloser
)

// Setup installs the environment configured logger as the slog default.
// debug forces the debug level regardless of POINTERS_LOG_LEVEL.
func Setup(debug bool) {
	initOnce.Do(func() {
		closer = logging.NewLogger()
		if debug {
			closer.SetLevel(charmlog.DebugLevel)
			closer.SetReportCaller(true)
		}
		slog.SetDefault(slog.New(closer.Logger))
		initialized.Store(true)
	})
}

// Close releases the log file, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	return closer.Close()
}

func Initialized() bool {
	return initialized.Load()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
