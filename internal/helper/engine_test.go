package helper_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"codeberg.org/mutker/cpupowerctl/internal/helper"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs/sysfstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, cpus ...sysfstest.CPU) (*helper.Engine, string) {
	t.Helper()
	root := sysfstest.Write(t, t.TempDir(), cpus...)
	return helper.NewEngine(sysfs.NewWithRoot(root)), root
}

func TestSetFrequencyBoundsOverlapping(t *testing.T) {
	engine, root := newEngine(t, sysfstest.DefaultCPU(0))

	// Current range is 800000-2000000; the new one overlaps it
	err := engine.SetFrequencyBounds(0, 1000000, 1800000)
	require.NoError(t, err)

	assert.Equal(t, "1000000", sysfstest.ReadControl(t, root, 0, "scaling_min_freq"))
	assert.Equal(t, "1800000", sysfstest.ReadControl(t, root, 0, "scaling_max_freq"))
}

func TestSetFrequencyBoundsAboveCurrentMax(t *testing.T) {
	engine, root := newEngine(t, sysfstest.DefaultCPU(0))

	// New min 2200000 exceeds the current max 2000000. Writing min first
	// would invert the range, so both writes must still land.
	err := engine.SetFrequencyBounds(0, 2200000, 2500000)
	require.NoError(t, err)

	assert.Equal(t, "2200000", sysfstest.ReadControl(t, root, 0, "scaling_min_freq"))
	assert.Equal(t, "2500000", sysfstest.ReadControl(t, root, 0, "scaling_max_freq"))
}

func TestSetFrequencyBoundsBelowCurrentMin(t *testing.T) {
	engine, root := newEngine(t, sysfstest.DefaultCPU(0))

	err := engine.SetFrequencyBounds(0, 400000, 600000)
	require.NoError(t, err)

	assert.Equal(t, "400000", sysfstest.ReadControl(t, root, 0, "scaling_min_freq"))
	assert.Equal(t, "600000", sysfstest.ReadControl(t, root, 0, "scaling_max_freq"))
}

func TestSetFrequencyBoundsOfflineCPU(t *testing.T) {
	offline := sysfstest.DefaultCPU(1)
	offline.Online = false
	engine, _ := newEngine(t, sysfstest.DefaultCPU(0), offline)

	err := engine.SetFrequencyBounds(1, 800000, 2000000)
	require.Error(t, err)
	assert.Equal(t, helper.ErrUnitUnavailable, errors.CodeOf(err))
}

func TestSetFrequencyBoundsMissingCPU(t *testing.T) {
	engine, _ := newEngine(t, sysfstest.DefaultCPU(0))

	err := engine.SetFrequencyBounds(7, 800000, 2000000)
	require.Error(t, err)
	assert.Equal(t, helper.ErrUnitUnavailable, errors.CodeOf(err))
}

func TestSetGovernor(t *testing.T) {
	engine, root := newEngine(t, sysfstest.DefaultCPU(0))

	require.NoError(t, engine.SetGovernor(0, "performance"))
	assert.Equal(t, "performance", sysfstest.ReadControl(t, root, 0, "scaling_governor"))
}

func TestSetEnergyPrefUnsupportedIsNoop(t *testing.T) {
	engine, root := newEngine(t, sysfstest.DefaultCPU(0))

	// An unsupported preference succeeds without touching the control file
	require.NoError(t, engine.SetEnergyPref(0, "bogus"))
	assert.Equal(t, "balance_performance",
		sysfstest.ReadControl(t, root, 0, "energy_performance_preference"))
}

func TestSetEnergyPref(t *testing.T) {
	engine, root := newEngine(t, sysfstest.DefaultCPU(0))

	require.NoError(t, engine.SetEnergyPref(0, "power"))
	assert.Equal(t, "power", sysfstest.ReadControl(t, root, 0, "energy_performance_preference"))
}

func TestSetOnlineStateDeniedWithoutControlFile(t *testing.T) {
	// CPU 0 carries no online file, meaning the kernel pins it online
	engine, _ := newEngine(t, sysfstest.DefaultCPU(0), sysfstest.DefaultCPU(1))

	err := engine.SetOnlineState(0, false)
	require.Error(t, err)
	assert.Equal(t, helper.ErrUnitUnavailable, errors.CodeOf(err))
}

func TestSetOnlineState(t *testing.T) {
	engine, root := newEngine(t, sysfstest.DefaultCPU(0), sysfstest.DefaultCPU(1))

	require.NoError(t, engine.SetOnlineState(1, false))

	// The kernel maintains the topology lists itself, so only the per-CPU
	// control file reflects the write in a fake tree.
	data, err := os.ReadFile(filepath.Join(root, "cpu1", "online"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))
}

// orderedWriter wraps the accessor and records each scaling bound write,
// failing the test as soon as scaling_min exceeds scaling_max.
type orderedWriter struct {
	*sysfs.Accessor
	t      *testing.T
	writes []string
}

func (w *orderedWriter) SetScalingMin(cpu, freqKHz int) error {
	err := w.Accessor.SetScalingMin(cpu, freqKHz)
	w.writes = append(w.writes, "min")
	w.checkBounds(cpu)
	return err
}

func (w *orderedWriter) SetScalingMax(cpu, freqKHz int) error {
	err := w.Accessor.SetScalingMax(cpu, freqKHz)
	w.writes = append(w.writes, "max")
	w.checkBounds(cpu)
	return err
}

func (w *orderedWriter) checkBounds(cpu int) {
	w.t.Helper()
	minFreq, maxFreq := w.ScalingFreqs(cpu)
	if minFreq > maxFreq {
		w.t.Fatalf("scaling_min_freq %d exceeds scaling_max_freq %d mid-update", minFreq, maxFreq)
	}
}

func TestSetFrequencyBoundsWriteOrder(t *testing.T) {
	// Current range in the fake tree is 800000-2000000
	cases := []struct {
		name           string
		newMin, newMax int
		order          []string
	}{
		{"overlapping", 1000000, 1800000, []string{"min", "max"}},
		{"below current min", 400000, 600000, []string{"min", "max"}},
		{"above current max", 2200000, 2500000, []string{"max", "min"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := sysfstest.Write(t, t.TempDir(), sysfstest.DefaultCPU(0))
			writer := &orderedWriter{Accessor: sysfs.NewWithRoot(root), t: t}
			engine := helper.NewEngine(writer)

			require.NoError(t, engine.SetFrequencyBounds(0, tc.newMin, tc.newMax))
			assert.Equal(t, tc.order, writer.writes)
		})
	}
}

func TestReturnCodes(t *testing.T) {
	offline := sysfstest.DefaultCPU(1)
	offline.Online = false
	engine, _ := newEngine(t, sysfstest.DefaultCPU(0), offline)

	assert.Equal(t, helper.CodeOK, helper.ReturnCode(engine.SetGovernor(0, "schedutil")))
	assert.Equal(t, helper.CodeUnavailable, helper.ReturnCode(engine.SetGovernor(1, "schedutil")))
}
