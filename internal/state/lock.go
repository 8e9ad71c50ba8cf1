package state

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/errors"
)

// Lock guards an output directory against concurrent runs.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes an advisory lock on the output directory. A second
// run against the same directory fails immediately instead of
// interleaving journal writes.
func AcquireLock(outputDir string) (*Lock, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Wrapf(errors.Execution, err, "cannot create %s", outputDir).WithOp("state.AcquireLock")
	}

	fl := flock.New(filepath.Join(outputDir, constants.LockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(errors.Execution, err, "cannot lock %s", outputDir).WithOp("state.AcquireLock")
	}
	if !locked {
		return nil, errors.Newf(errors.AlreadyExists, "another run is already active in %s", outputDir).WithOp("state.AcquireLock")
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
