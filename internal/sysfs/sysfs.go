package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultRoot = "/sys/devices/system/cpu"

	cpufreqDir = "cpufreq"

	scalingMinFile    = "scaling_min_freq"
	scalingMaxFile    = "scaling_max_freq"
	scalingCurFile    = "scaling_cur_freq"
	scalingGovFile    = "scaling_governor"
	availableGovFile  = "scaling_available_governors"
	availableFreqFile = "scaling_available_frequencies"
	cpuinfoMinFile    = "cpuinfo_min_freq"
	cpuinfoMaxFile    = "cpuinfo_max_freq"
	eppFile           = "energy_performance_preference"
	availableEppFile  = "energy_performance_available_preferences"
	onlineFile        = "online"

	// Governor sentinels reported for units that cannot answer
	GovernorOffline = "OFFLINE"
	GovernorError   = "ERROR"
)

// Accessor reads and writes the cpufreq control files under a sysfs root.
// The root is injectable so tests can run against a fake tree.
type Accessor struct {
	root string
}

func New() *Accessor {
	return NewWithRoot(DefaultRoot)
}

func NewWithRoot(root string) *Accessor {
	if root == "" {
		root = DefaultRoot
	}
	return &Accessor{root: root}
}

func (a *Accessor) Root() string {
	return a.root
}

func (a *Accessor) cpuPath(cpu int) string {
	return filepath.Join(a.root, fmt.Sprintf("cpu%d", cpu))
}

func (a *Accessor) freqPath(cpu int, resource string) string {
	return filepath.Join(a.cpuPath(cpu), cpufreqDir, resource)
}

func (a *Accessor) onlinePath(cpu int) string {
	return filepath.Join(a.cpuPath(cpu), onlineFile)
}

func (a *Accessor) readFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (a *Accessor) readInt(path string) int {
	value, err := strconv.Atoi(a.readFile(path))
	if err != nil {
		return 0
	}
	return value
}

// CPU topology

func (a *Accessor) PresentCPUs() []int {
	return ParseCPUList(a.readFile(filepath.Join(a.root, "present")))
}

func (a *Accessor) OnlineCPUs() []int {
	return ParseCPUList(a.readFile(filepath.Join(a.root, "online")))
}

func (a *Accessor) OfflineCPUs() []int {
	return ParseCPUList(a.readFile(filepath.Join(a.root, "offline")))
}

// AvailableCPUs returns the present CPUs that expose a cpufreq directory.
func (a *Accessor) AvailableCPUs() []int {
	available := []int{}
	for _, cpu := range a.PresentCPUs() {
		if _, err := os.Stat(filepath.Join(a.cpuPath(cpu), cpufreqDir)); err == nil {
			available = append(available, cpu)
			continue
		}
		// Offline CPUs lose their cpufreq directory but remain selectable
		if !a.isOnline(cpu) {
			available = append(available, cpu)
		}
	}
	return available
}

func (a *Accessor) IsPresent(cpu int) bool {
	return containsInt(a.PresentCPUs(), cpu)
}

func (a *Accessor) IsOnline(cpu int) bool {
	return a.isOnline(cpu)
}

func (a *Accessor) isOnline(cpu int) bool {
	return containsInt(a.OnlineCPUs(), cpu)
}

// AllowedOffline reports whether the kernel exposes an online control file
// for the CPU. CPU 0 normally does not have one.
func (a *Accessor) AllowedOffline(cpu int) bool {
	_, err := os.Stat(a.onlinePath(cpu))
	return err == nil
}

// Frequencies (kHz)

func (a *Accessor) ScalingFreqs(cpu int) (minFreq, maxFreq int) {
	if !a.isOnline(cpu) {
		return 0, 0
	}
	return a.readInt(a.freqPath(cpu, scalingMinFile)), a.readInt(a.freqPath(cpu, scalingMaxFile))
}

func (a *Accessor) FreqLimits(cpu int) (hwMin, hwMax int) {
	if !a.isOnline(cpu) {
		return 0, 0
	}
	return a.readInt(a.freqPath(cpu, cpuinfoMinFile)), a.readInt(a.freqPath(cpu, cpuinfoMaxFile))
}

func (a *Accessor) CurrentFreq(cpu int) int {
	if !a.isOnline(cpu) {
		return 0
	}
	return a.readInt(a.freqPath(cpu, scalingCurFile))
}

func (a *Accessor) AvailableFrequencies(cpu int) []int {
	result := []int{}
	if !a.isOnline(cpu) {
		return result
	}
	for _, field := range ParseList(a.readFile(a.freqPath(cpu, availableFreqFile))) {
		freq, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		result = append(result, freq)
	}
	return result
}

// Governor

func (a *Accessor) CurrentGovernor(cpu int) string {
	if !a.isOnline(cpu) {
		return GovernorOffline
	}

	governor := a.readFile(a.freqPath(cpu, scalingGovFile))
	if governor == "" {
		return GovernorError
	}
	return governor
}

func (a *Accessor) AvailableGovernors(cpu int) []string {
	return ParseList(a.readFile(a.freqPath(cpu, availableGovFile)))
}

// Energy performance preference

func (a *Accessor) CurrentEnergyPref(cpu int) string {
	if !a.isOnline(cpu) {
		return ""
	}
	return a.readFile(a.freqPath(cpu, eppFile))
}

func (a *Accessor) AvailableEnergyPrefs(cpu int) []string {
	return ParseList(a.readFile(a.freqPath(cpu, availableEppFile)))
}

// EnergyPrefAvailable reports whether the active scaling driver exposes an
// energy performance preference for the CPU.
func (a *Accessor) EnergyPrefAvailable(cpu int) bool {
	_, err := os.Stat(a.freqPath(cpu, eppFile))
	return err == nil
}

// Writes. Only the privileged helper uses these; the client side stays
// strictly read-only.

func (a *Accessor) writeFile(path, value string) error {
	// No O_CREATE: a missing control file means the kernel does not allow
	// the operation, and must surface as an error rather than a new file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (a *Accessor) SetScalingMin(cpu, freqKHz int) error {
	return a.writeFile(a.freqPath(cpu, scalingMinFile), strconv.Itoa(freqKHz))
}

func (a *Accessor) SetScalingMax(cpu, freqKHz int) error {
	return a.writeFile(a.freqPath(cpu, scalingMaxFile), strconv.Itoa(freqKHz))
}

func (a *Accessor) SetGovernor(cpu int, governor string) error {
	return a.writeFile(a.freqPath(cpu, scalingGovFile), governor)
}

func (a *Accessor) SetEnergyPref(cpu int, pref string) error {
	return a.writeFile(a.freqPath(cpu, eppFile), pref)
}

func (a *Accessor) SetOnlineState(cpu int, online bool) error {
	value := "0"
	if online {
		value = "1"
	}
	return a.writeFile(a.onlinePath(cpu), value)
}

func containsInt(list []int, value int) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
