package pkg

import (
	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/distro"
	"github.com/tungetti/carve/internal/exec"
)

// ForDistribution returns the package manager for the distribution's
// family. Families without a supported manager (SUSE, unknown) get
// ErrManagerUnavailable; the caller prints manual instructions instead.
func ForDistribution(dist *distro.Distribution, executor exec.Executor, opts ...Option) (Manager, error) {
	if dist == nil {
		return nil, ErrManagerUnavailable
	}

	switch dist.Family {
	case constants.FamilyArch:
		return NewPacman(executor, opts...), nil
	case constants.FamilyDebian:
		return NewApt(executor, opts...), nil
	case constants.FamilyRHEL:
		return NewDnf(executor, opts...), nil
	default:
		return nil, ErrManagerUnavailable
	}
}
