package safe

import (
	"IMSync/logger"
)

// Go starts a goroutine that recovers from panic, so a single bad frame or a
// closed channel cannot take the whole gateway down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
