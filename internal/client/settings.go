package client

import (
	"fmt"

	"codeberg.org/mutker/cpupowerctl/internal/sysfs"
)

// Settings tracks the system-confirmed and pending values of one CPU unit.
// Pending fields are nil until the caller sets a candidate; Apply turns the
// changed fields into scheduler operations and clears them. After the batch
// completes the owner calls Refresh so "changed" reflects only edits that
// genuinely did not land.
type Settings struct {
	sysfs *sysfs.Accessor
	sched *Scheduler
	cpu   int

	hwMin, hwMax   int
	governors      []string
	energyPrefs    []string
	allowedOffline bool

	origMin, origMax int
	origGovernor     string
	origEnergyPref   string
	origOnline       bool

	pendMin, pendMax *int
	pendGovernor     *string
	pendEnergyPref   *string
	pendOnline       *bool
}

func NewSettings(accessor *sysfs.Accessor, sched *Scheduler, cpu int) *Settings {
	s := &Settings{sysfs: accessor, sched: sched, cpu: cpu}
	s.Refresh()
	return s
}

func (s *Settings) CPU() int {
	return s.cpu
}

// Refresh re-reads ground truth from the kernel and discards all pending
// values.
func (s *Settings) Refresh() {
	s.hwMin, s.hwMax = s.sysfs.FreqLimits(s.cpu)
	s.governors = s.sysfs.AvailableGovernors(s.cpu)
	s.energyPrefs = s.sysfs.AvailableEnergyPrefs(s.cpu)
	s.allowedOffline = s.sysfs.AllowedOffline(s.cpu)

	s.origMin, s.origMax = s.sysfs.ScalingFreqs(s.cpu)
	s.origGovernor = s.sysfs.CurrentGovernor(s.cpu)
	s.origEnergyPref = s.sysfs.CurrentEnergyPref(s.cpu)
	s.origOnline = s.sysfs.IsOnline(s.cpu)

	s.Discard()
}

// Discard drops pending values without applying them.
func (s *Settings) Discard() {
	s.pendMin, s.pendMax = nil, nil
	s.pendGovernor = nil
	s.pendEnergyPref = nil
	s.pendOnline = nil
}

func (s *Settings) HardwareLimits() (minKHz, maxKHz int) {
	return s.hwMin, s.hwMax
}

func (s *Settings) Governors() []string {
	return s.governors
}

func (s *Settings) EnergyPrefs() []string {
	return s.energyPrefs
}

func (s *Settings) AllowedOffline() bool {
	return s.allowedOffline
}

func (s *Settings) Online() bool {
	if s.pendOnline != nil {
		return *s.pendOnline
	}
	return s.origOnline
}

func (s *Settings) FreqBounds() (minKHz, maxKHz int) {
	minKHz, maxKHz = s.origMin, s.origMax
	if s.pendMin != nil {
		minKHz = *s.pendMin
	}
	if s.pendMax != nil {
		maxKHz = *s.pendMax
	}
	return minKHz, maxKHz
}

func (s *Settings) Governor() string {
	if s.pendGovernor != nil {
		return *s.pendGovernor
	}
	return s.origGovernor
}

func (s *Settings) EnergyPref() string {
	if s.pendEnergyPref != nil {
		return *s.pendEnergyPref
	}
	return s.origEnergyPref
}

// SetFreqMin records a candidate scaling floor, clamped to hardware limits.
func (s *Settings) SetFreqMin(freqKHz int) {
	v := clamp(freqKHz, s.hwMin, s.hwMax)
	s.pendMin = &v
}

func (s *Settings) SetFreqMax(freqKHz int) {
	v := clamp(freqKHz, s.hwMin, s.hwMax)
	s.pendMax = &v
}

// SetGovernor records a candidate governor. A name outside the unit's
// supported set is silently ignored; the supported set is authoritative.
func (s *Settings) SetGovernor(governor string) {
	if !contains(s.governors, governor) {
		return
	}
	s.pendGovernor = &governor
}

func (s *Settings) SetEnergyPref(pref string) {
	if !contains(s.energyPrefs, pref) {
		return
	}
	s.pendEnergyPref = &pref
}

// SetOnline records a candidate online state. Taking a unit offline is
// ignored when the kernel does not allow it (CPU 0 in particular).
func (s *Settings) SetOnline(online bool) {
	if !online && !s.allowedOffline {
		return
	}
	s.pendOnline = &online
}

func (s *Settings) freqChanged() bool {
	newMin, newMax := s.FreqBounds()
	return newMin != s.origMin || newMax != s.origMax
}

func (s *Settings) governorChanged() bool {
	return s.pendGovernor != nil && *s.pendGovernor != s.origGovernor
}

func (s *Settings) energyPrefChanged() bool {
	return s.pendEnergyPref != nil && *s.pendEnergyPref != s.origEnergyPref
}

func (s *Settings) onlineChanged() bool {
	return s.pendOnline != nil && *s.pendOnline != s.origOnline
}

// Changed reports whether any pending value differs from the confirmed one.
func (s *Settings) Changed() bool {
	return s.onlineChanged() || s.freqChanged() || s.governorChanged() || s.energyPrefChanged()
}

// Apply enqueues the changed fields as one scheduler group and clears the
// pending set. The online transition goes first as a gating operation: if it
// fails, the rest of this unit's group is dropped. Committing to offline
// skips the field writes entirely, since an offline unit cannot accept them.
func (s *Settings) Apply() {
	group := fmt.Sprintf("cpu%d", s.cpu)

	if s.onlineChanged() {
		if *s.pendOnline {
			s.sched.Enqueue(Operation{
				Method:      "set_cpu_online",
				Args:        []interface{}{int32(s.cpu)},
				Description: fmt.Sprintf("set CPU %d online", s.cpu),
				Group:       group,
				Gating:      true,
			})
		} else {
			s.sched.Enqueue(Operation{
				Method:      "set_cpu_offline",
				Args:        []interface{}{int32(s.cpu)},
				Description: fmt.Sprintf("set CPU %d offline", s.cpu),
				Group:       group,
				Gating:      true,
			})
			s.Discard()
			return
		}
	} else if !s.Online() {
		s.Discard()
		return
	}

	if s.freqChanged() {
		newMin, newMax := s.FreqBounds()
		s.sched.Enqueue(Operation{
			Method:      "update_cpu_settings",
			Args:        []interface{}{int32(s.cpu), int32(newMin), int32(newMax)},
			Description: fmt.Sprintf("set CPU %d frequency bounds %d-%d kHz", s.cpu, newMin, newMax),
			Group:       group,
		})
	}

	if s.governorChanged() {
		s.sched.Enqueue(Operation{
			Method:      "update_cpu_governor",
			Args:        []interface{}{int32(s.cpu), *s.pendGovernor},
			Description: fmt.Sprintf("set CPU %d governor %s", s.cpu, *s.pendGovernor),
			Group:       group,
		})
	}

	if s.energyPrefChanged() {
		s.sched.Enqueue(Operation{
			Method:      "update_cpu_energy_prefs",
			Args:        []interface{}{int32(s.cpu), *s.pendEnergyPref},
			Description: fmt.Sprintf("set CPU %d energy preference %s", s.cpu, *s.pendEnergyPref),
			Group:       group,
		})
	}

	s.Discard()
}

func clamp(v, lo, hi int) int {
	if hi <= 0 {
		return v
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
