package utils

import (
	"io"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
)

// CloseLogged closes c and logs a failure under the given name.
func CloseLogged(c io.Closer, name string, log logger.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("resource", name), logger.Error(err))
	}
}

// DrainClose discards what is left of an HTTP body before closing it so the
// connection can be reused.
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	_ = rc.Close()
}
