package helper

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/cpupowerctl/internal/history"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs/sysfstest"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAuthority struct {
	authorized bool
}

func (s staticAuthority) CheckAuthorization(context.Context, string, string) (bool, bool, error) {
	return s.authorized, false, nil
}

type captureRecorder struct {
	entries []*history.Entry
}

func (c *captureRecorder) Record(_ context.Context, entry *history.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

func newTestService(t *testing.T, authorized bool, cpus ...sysfstest.CPU) (*Service, *captureRecorder, string) {
	t.Helper()

	root := sysfstest.Write(t, t.TempDir(), cpus...)
	recorder := &captureRecorder{}
	auth := NewAuthorizer(staticAuthority{authorized: authorized}, time.Second)
	svc := NewService(sysfs.NewWithRoot(root), auth, recorder, 0)
	return svc, recorder, root
}

func TestUpdateCPUSettingsDenied(t *testing.T) {
	svc, recorder, root := newTestService(t, false, sysfstest.DefaultCPU(0))

	code, dbusErr := svc.updateCPUSettings(dbus.Sender(":1.42"), 0, 1000000, 1500000)
	require.Nil(t, dbusErr)
	assert.Equal(t, CodeUnavailable, code)

	// A denied call must not reach the control files or the history
	assert.Equal(t, "800000", sysfstest.ReadControl(t, root, 0, "scaling_min_freq"))
	assert.Equal(t, "2000000", sysfstest.ReadControl(t, root, 0, "scaling_max_freq"))
	assert.Empty(t, recorder.entries)
}

func TestUpdateCPUSettings(t *testing.T) {
	svc, recorder, root := newTestService(t, true, sysfstest.DefaultCPU(0))

	code, dbusErr := svc.updateCPUSettings(dbus.Sender(":1.42"), 0, 1000000, 1500000)
	require.Nil(t, dbusErr)
	assert.Equal(t, CodeOK, code)

	assert.Equal(t, "1000000", sysfstest.ReadControl(t, root, 0, "scaling_min_freq"))
	assert.Equal(t, "1500000", sysfstest.ReadControl(t, root, 0, "scaling_max_freq"))

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, "update_cpu_settings", entry.Action)
	assert.Equal(t, ":1.42", entry.Caller)
	assert.Equal(t, 0, entry.Code)
}

func TestUpdateCPUGovernorUnavailableUnit(t *testing.T) {
	offline := sysfstest.DefaultCPU(1)
	offline.Online = false
	svc, recorder, _ := newTestService(t, true, sysfstest.DefaultCPU(0), offline)

	code, dbusErr := svc.updateCPUGovernor(dbus.Sender(":1.42"), 1, "performance")
	require.Nil(t, dbusErr)
	assert.Equal(t, CodeUnavailable, code)

	// Failed attempts are recorded too, with their result code
	require.Len(t, recorder.entries, 1)
	assert.Equal(t, int(CodeUnavailable), recorder.entries[0].Code)
}

func TestQueriesOnOfflineUnit(t *testing.T) {
	offline := sysfstest.DefaultCPU(1)
	offline.Online = false
	svc, _, _ := newTestService(t, true, sysfstest.DefaultCPU(0), offline)

	governors, _ := svc.cpuGovernors(1)
	assert.Empty(t, governors)

	freqs, _ := svc.cpuFrequencies(1)
	assert.Equal(t, []int32{0, 0}, freqs)

	governor, _ := svc.cpuGovernor(1)
	assert.Empty(t, governor)
}

func TestTopologyQueries(t *testing.T) {
	offline := sysfstest.DefaultCPU(2)
	offline.Online = false
	svc, _, _ := newTestService(t, true,
		sysfstest.DefaultCPU(0), sysfstest.DefaultCPU(1), offline)

	online, _ := svc.cpusOnline()
	assert.Equal(t, []int32{0, 1}, online)

	offlineCPUs, _ := svc.cpusOffline()
	assert.Equal(t, []int32{2}, offlineCPUs)

	present, _ := svc.cpusPresent()
	assert.Equal(t, []int32{0, 1, 2}, present)
}

func TestIsAuthorized(t *testing.T) {
	granted, _, _ := newTestService(t, true, sysfstest.DefaultCPU(0))
	denied, _, _ := newTestService(t, false, sysfstest.DefaultCPU(0))

	code, _ := granted.isAuthorized(dbus.Sender(":1.42"))
	assert.Equal(t, int32(1), code)

	code, _ = denied.isAuthorized(dbus.Sender(":1.42"))
	assert.Equal(t, int32(0), code)
}

func TestCPUAllowedOffline(t *testing.T) {
	svc, _, _ := newTestService(t, true, sysfstest.DefaultCPU(0), sysfstest.DefaultCPU(1))

	code, _ := svc.cpuAllowedOffline(0)
	assert.Equal(t, int32(0), code)

	code, _ = svc.cpuAllowedOffline(1)
	assert.Equal(t, int32(1), code)
}

func TestQuitClosesDone(t *testing.T) {
	svc, _, _ := newTestService(t, true, sysfstest.DefaultCPU(0))

	require.Nil(t, svc.quit())

	select {
	case <-svc.Done():
	default:
		t.Fatal("Expected Done to be closed after quit")
	}

	// Quit is idempotent
	require.Nil(t, svc.quit())
}

func TestIdleTimeout(t *testing.T) {
	svc, _, _ := newTestService(t, true, sysfstest.DefaultCPU(0))
	svc.idleTimeout = 20 * time.Millisecond

	svc.mu.Lock()
	svc.startIdleTimer()
	svc.mu.Unlock()

	select {
	case <-svc.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected the idle timer to shut the service down")
	}
}

func TestIdleTimerResetOnActivity(t *testing.T) {
	svc, _, _ := newTestService(t, true, sysfstest.DefaultCPU(0))
	svc.idleTimeout = 60 * time.Millisecond

	svc.mu.Lock()
	svc.startIdleTimer()
	svc.mu.Unlock()

	// Keep the service busy for longer than one idle period
	for i := 0; i < 5; i++ {
		time.Sleep(25 * time.Millisecond)
		_, _ = svc.cpusOnline()
	}

	select {
	case <-svc.Done():
		t.Fatal("Expected activity to keep the service alive")
	default:
	}
}
