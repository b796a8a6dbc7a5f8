package setup

import (
	"log/slog"

	"github.com/cochaviz/virtmcp/internal/logging"
)

var packageLogger *slog.Logger

// SetLogger replaces the logger used by Initialize and ClearConfig. Nil
// restores the default logger.
func SetLogger(logger *slog.Logger) {
	packageLogger = logger
}

func getLogger() *slog.Logger {
	return logging.Ensure(packageLogger)
}
