package helper

import (
	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"codeberg.org/mutker/cpupowerctl/internal/logger"
)

// Engine applies mutations to the cpufreq control files. Frequency bound
// updates are ordered so that scaling_min <= scaling_max holds at every
// intermediate step, no matter how the new range relates to the old one.
type Engine struct {
	sysfs Sysfs
}

func NewEngine(accessor Sysfs) *Engine {
	return &Engine{sysfs: accessor}
}

// SetFrequencyBounds writes new scaling bounds for the CPU. The write order
// depends on how the target range relates to the current one:
//   - new max below current min: lower the floor before the ceiling
//   - new min above current max: raise the ceiling before the floor
//   - overlapping ranges: min then max
//
// A partially applied pair is not rolled back; the caller observes the
// outcome through a subsequent read.
func (e *Engine) SetFrequencyBounds(cpu, newMin, newMax int) error {
	errFactory := errors.New()

	if !e.sysfs.IsPresent(cpu) || !e.sysfs.IsOnline(cpu) {
		return errFactory.WithData(ErrUnitUnavailable, cpu)
	}

	curMin, curMax := e.sysfs.ScalingFreqs(cpu)

	logger.Debug().
		Int("cpu", cpu).
		Int("cur_min", curMin).Int("cur_max", curMax).
		Int("new_min", newMin).Int("new_max", newMax).
		Msg("Updating frequency bounds")

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	switch {
	case newMax < curMin:
		record(e.sysfs.SetScalingMin(cpu, newMin))
		record(e.sysfs.SetScalingMax(cpu, newMax))
	case newMin > curMax:
		record(e.sysfs.SetScalingMax(cpu, newMax))
		record(e.sysfs.SetScalingMin(cpu, newMin))
	default:
		record(e.sysfs.SetScalingMin(cpu, newMin))
		record(e.sysfs.SetScalingMax(cpu, newMax))
	}

	if firstErr != nil {
		return errFactory.Wrap(ErrWriteFailed, firstErr)
	}

	return nil
}

func (e *Engine) SetGovernor(cpu int, governor string) error {
	errFactory := errors.New()

	if !e.sysfs.IsPresent(cpu) || !e.sysfs.IsOnline(cpu) {
		return errFactory.WithData(ErrUnitUnavailable, cpu)
	}

	if err := e.sysfs.SetGovernor(cpu, governor); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

// SetEnergyPref writes the energy performance preference. A preference the
// unit does not support, or a driver that exposes no preference file at all,
// is a silent success rather than an error.
func (e *Engine) SetEnergyPref(cpu int, pref string) error {
	errFactory := errors.New()

	if !e.sysfs.IsPresent(cpu) || !e.sysfs.IsOnline(cpu) {
		return errFactory.WithData(ErrUnitUnavailable, cpu)
	}

	if !containsString(e.sysfs.AvailableEnergyPrefs(cpu), pref) {
		logger.Debug().Int("cpu", cpu).Str("pref", pref).Msg("Energy preference not supported, skipping")
		return nil
	}

	if !e.sysfs.EnergyPrefAvailable(cpu) {
		return nil
	}

	if err := e.sysfs.SetEnergyPref(cpu, pref); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

// SetOnlineState brings the CPU online or takes it offline. A missing online
// control file is how the kernel signals the transition is not allowed
// (CPU 0 in particular), reported as unit unavailable.
func (e *Engine) SetOnlineState(cpu int, online bool) error {
	errFactory := errors.New()

	if !e.sysfs.AllowedOffline(cpu) {
		return errFactory.WithData(ErrUnitUnavailable, cpu)
	}

	if err := e.sysfs.SetOnlineState(cpu, online); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
