//go:build !linux
// +build !linux

package transport

import (
	"context"
	"runtime"

	"github.com/juju/errors"
)

func openSerial(ctx context.Context, path string, baud int) (Port, error) {
	return nil, errors.NotSupportedf("serial port on %s", runtime.GOOS)
}
