// Package sysfstest builds fake cpufreq sysfs trees for tests.
package sysfstest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// CPU describes one CPU directory in a fake sysfs tree.
type CPU struct {
	Index         int
	Online        bool
	HasOnlineFile bool

	ScalingMin int
	ScalingMax int
	HWMin      int
	HWMax      int
	CurFreq    int

	Governor    string
	Governors   []string
	EnergyPref  string
	EnergyPrefs []string
	Frequencies []int
}

// DefaultCPU returns an online CPU with a typical laptop frequency range.
func DefaultCPU(index int) CPU {
	return CPU{
		Index:         index,
		Online:        true,
		HasOnlineFile: index != 0,
		ScalingMin:    800000,
		ScalingMax:    2000000,
		HWMin:         400000,
		HWMax:         3500000,
		CurFreq:       1200000,
		Governor:      "powersave",
		Governors:     []string{"performance", "powersave", "schedutil"},
		EnergyPref:    "balance_performance",
		EnergyPrefs:   []string{"default", "performance", "balance_performance", "power"},
	}
}

// Write materializes the fake tree under root and returns root.
func Write(t *testing.T, root string, cpus ...CPU) string {
	t.Helper()

	var present, online, offline []int
	for _, cpu := range cpus {
		present = append(present, cpu.Index)
		if cpu.Online {
			online = append(online, cpu.Index)
		} else {
			offline = append(offline, cpu.Index)
		}
	}

	writeFile(t, filepath.Join(root, "present"), joinInts(present))
	writeFile(t, filepath.Join(root, "online"), joinInts(online))
	writeFile(t, filepath.Join(root, "offline"), joinInts(offline))

	for _, cpu := range cpus {
		cpuDir := filepath.Join(root, fmt.Sprintf("cpu%d", cpu.Index))
		require.NoError(t, os.MkdirAll(cpuDir, 0o755))

		if cpu.HasOnlineFile {
			state := "0"
			if cpu.Online {
				state = "1"
			}
			writeFile(t, filepath.Join(cpuDir, "online"), state)
		}

		if !cpu.Online {
			continue
		}

		freqDir := filepath.Join(cpuDir, "cpufreq")
		require.NoError(t, os.MkdirAll(freqDir, 0o755))

		writeFile(t, filepath.Join(freqDir, "scaling_min_freq"), strconv.Itoa(cpu.ScalingMin))
		writeFile(t, filepath.Join(freqDir, "scaling_max_freq"), strconv.Itoa(cpu.ScalingMax))
		writeFile(t, filepath.Join(freqDir, "cpuinfo_min_freq"), strconv.Itoa(cpu.HWMin))
		writeFile(t, filepath.Join(freqDir, "cpuinfo_max_freq"), strconv.Itoa(cpu.HWMax))
		writeFile(t, filepath.Join(freqDir, "scaling_cur_freq"), strconv.Itoa(cpu.CurFreq))
		writeFile(t, filepath.Join(freqDir, "scaling_governor"), cpu.Governor)
		writeFile(t, filepath.Join(freqDir, "scaling_available_governors"), strings.Join(cpu.Governors, " "))

		if len(cpu.EnergyPrefs) > 0 {
			writeFile(t, filepath.Join(freqDir, "energy_performance_preference"), cpu.EnergyPref)
			writeFile(t, filepath.Join(freqDir, "energy_performance_available_preferences"),
				strings.Join(cpu.EnergyPrefs, " "))
		}

		if len(cpu.Frequencies) > 0 {
			fields := make([]string, 0, len(cpu.Frequencies))
			for _, f := range cpu.Frequencies {
				fields = append(fields, strconv.Itoa(f))
			}
			writeFile(t, filepath.Join(freqDir, "scaling_available_frequencies"), strings.Join(fields, " "))
		}
	}

	return root
}

// ReadControl returns the trimmed content of a control file in the tree.
func ReadControl(t *testing.T, root string, cpu int, resource string) string {
	t.Helper()

	path := filepath.Join(root, fmt.Sprintf("cpu%d", cpu), "cpufreq", resource)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0o644))
}

func joinInts(values []int) string {
	fields := make([]string, 0, len(values))
	for _, v := range values {
		fields = append(fields, strconv.Itoa(v))
	}
	return strings.Join(fields, ",")
}
