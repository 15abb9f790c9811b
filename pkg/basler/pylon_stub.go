//go:build !pylon || !cgo

package basler

import (
	"fmt"
	"log/slog"
)

// newPylonBackend returns an error when built without the pylon tag.
func newPylonBackend(logger *slog.Logger) (Backend, error) {
	return nil, fmt.Errorf("%w: pylon (rebuild with -tags pylon and the pylon SDK installed)", ErrBackendUnavailable)
}
