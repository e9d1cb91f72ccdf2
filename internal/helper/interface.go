package helper

// Sysfs is the kernel state surface the helper reads and mutates
type Sysfs interface {
	// Topology
	PresentCPUs() []int
	OnlineCPUs() []int
	OfflineCPUs() []int
	IsPresent(cpu int) bool
	IsOnline(cpu int) bool
	AllowedOffline(cpu int) bool

	// Per-CPU state
	ScalingFreqs(cpu int) (minFreq, maxFreq int)
	FreqLimits(cpu int) (hwMin, hwMax int)
	CurrentGovernor(cpu int) string
	AvailableGovernors(cpu int) []string
	CurrentEnergyPref(cpu int) string
	AvailableEnergyPrefs(cpu int) []string
	EnergyPrefAvailable(cpu int) bool

	// Mutations
	SetScalingMin(cpu, freqKHz int) error
	SetScalingMax(cpu, freqKHz int) error
	SetGovernor(cpu int, governor string) error
	SetEnergyPref(cpu int, pref string) error
	SetOnlineState(cpu int, online bool) error
}
