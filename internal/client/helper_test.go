package client

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBusObject answers helper interface calls with canned reply bodies,
// keyed by the unqualified method name.
type fakeBusObject struct {
	replies map[string][]interface{}
	err     error
	methods []string
	flags   []dbus.Flags
}

func (f *fakeBusObject) newCall(method string, flags dbus.Flags) *dbus.Call {
	name := strings.TrimPrefix(method, interfaceName+".")
	f.methods = append(f.methods, name)
	f.flags = append(f.flags, flags)
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	return &dbus.Call{Body: f.replies[name]}
}

func (f *fakeBusObject) Call(method string, flags dbus.Flags, _ ...interface{}) *dbus.Call {
	return f.newCall(method, flags)
}

func (f *fakeBusObject) CallWithContext(_ context.Context, method string, flags dbus.Flags, _ ...interface{}) *dbus.Call {
	return f.newCall(method, flags)
}

func (f *fakeBusObject) Go(method string, flags dbus.Flags, _ chan *dbus.Call, _ ...interface{}) *dbus.Call {
	return f.newCall(method, flags)
}

func (f *fakeBusObject) GoWithContext(_ context.Context, method string, flags dbus.Flags, _ chan *dbus.Call, _ ...interface{}) *dbus.Call {
	return f.newCall(method, flags)
}

func (f *fakeBusObject) AddMatchSignal(_, _ string, _ ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (f *fakeBusObject) RemoveMatchSignal(_, _ string, _ ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (f *fakeBusObject) GetProperty(string) (dbus.Variant, error) { return dbus.Variant{}, nil }

func (f *fakeBusObject) StoreProperty(string, interface{}) error { return nil }

func (f *fakeBusObject) SetProperty(string, interface{}) error { return nil }

func (f *fakeBusObject) Destination() string { return busName }

func (f *fakeBusObject) Path() dbus.ObjectPath { return objectPath }

func newFakeHelper(replies map[string][]interface{}) (*Helper, *fakeBusObject) {
	fake := &fakeBusObject{replies: replies}
	return &Helper{obj: fake, timeout: time.Second}, fake
}

func TestHelperTopologyQueries(t *testing.T) {
	helperStub, fake := newFakeHelper(map[string][]interface{}{
		"get_cpus_available": {[]int32{0, 1, 2}},
		"get_cpus_online":    {[]int32{0, 1}},
		"get_cpus_offline":   {[]int32{2}},
		"get_cpus_present":   {[]int32{0, 1, 2}},
	})

	available, err := helperStub.CPUsAvailable()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, available)

	online, err := helperStub.CPUsOnline()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, online)

	offline, err := helperStub.CPUsOffline()
	require.NoError(t, err)
	assert.Equal(t, []int{2}, offline)

	present, err := helperStub.CPUsPresent()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, present)

	assert.Equal(t, []string{
		"get_cpus_available", "get_cpus_online", "get_cpus_offline", "get_cpus_present",
	}, fake.methods)
}

func TestHelperPerCPUQueries(t *testing.T) {
	helperStub, _ := newFakeHelper(map[string][]interface{}{
		"get_cpu_governors":          {[]string{"performance", "powersave"}},
		"get_cpu_energy_preferences": {[]string{"default", "power"}},
		"get_cpu_governor":           {"powersave"},
		"get_cpu_energy_preference":  {"power"},
		"get_cpu_frequencies":        {[]int32{800000, 2000000}},
		"get_cpu_limits":             {[]int32{400000, 3500000}},
		"cpu_allowed_offline":        {int32(1)},
	})

	governors, err := helperStub.CPUGovernors(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"performance", "powersave"}, governors)

	prefs, err := helperStub.CPUEnergyPreferences(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "power"}, prefs)

	governor, err := helperStub.CPUGovernor(1)
	require.NoError(t, err)
	assert.Equal(t, "powersave", governor)

	pref, err := helperStub.CPUEnergyPreference(1)
	require.NoError(t, err)
	assert.Equal(t, "power", pref)

	freqs, err := helperStub.CPUFrequencies(1)
	require.NoError(t, err)
	assert.Equal(t, []int{800000, 2000000}, freqs)

	limits, err := helperStub.CPULimits(1)
	require.NoError(t, err)
	assert.Equal(t, []int{400000, 3500000}, limits)

	allowed, err := helperStub.CPUAllowedOffline(1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHelperIsAuthorized(t *testing.T) {
	granted, _ := newFakeHelper(map[string][]interface{}{
		"isauthorized": {int32(1)},
	})
	authorized, err := granted.IsAuthorized()
	require.NoError(t, err)
	assert.True(t, authorized)

	denied, _ := newFakeHelper(map[string][]interface{}{
		"isauthorized": {int32(0)},
	})
	authorized, err = denied.IsAuthorized()
	require.NoError(t, err)
	assert.False(t, authorized)
}

func TestHelperCallReturnsReplyCode(t *testing.T) {
	helperStub, fake := newFakeHelper(map[string][]interface{}{
		"update_cpu_settings": {int32(-13)},
	})

	code, err := helperStub.Call("update_cpu_settings", int32(0), int32(800000), int32(2000000))
	require.NoError(t, err)
	assert.Equal(t, int32(-13), code)
	assert.Equal(t, []string{"update_cpu_settings"}, fake.methods)
}

func TestHelperCallReportsBusError(t *testing.T) {
	helperStub, fake := newFakeHelper(nil)
	fake.err = fmt.Errorf("no reply")

	_, err := helperStub.Call("update_cpu_governor", int32(0), "powersave")
	require.Error(t, err)
	assert.Equal(t, ErrBusCall, errors.CodeOf(err))

	_, err = helperStub.CPUsOnline()
	require.Error(t, err)
	assert.Equal(t, ErrBusCall, errors.CodeOf(err))

	_, err = helperStub.CPUGovernor(0)
	require.Error(t, err)
	assert.Equal(t, ErrBusCall, errors.CodeOf(err))
}

func TestHelperNotConnected(t *testing.T) {
	var helperStub *Helper
	assert.False(t, helperStub.Connected())

	disconnected := &Helper{}
	assert.False(t, disconnected.Connected())

	_, err := disconnected.Call("isauthorized")
	require.Error(t, err)
	assert.Equal(t, ErrNotConnected, errors.CodeOf(err))

	_, err = disconnected.CPUsPresent()
	require.Error(t, err)
	assert.Equal(t, ErrNotConnected, errors.CodeOf(err))

	require.Error(t, disconnected.Quit())
}

func TestHelperQuitExpectsNoReply(t *testing.T) {
	helperStub, fake := newFakeHelper(nil)

	require.NoError(t, helperStub.Quit())
	require.Equal(t, []string{"quit"}, fake.methods)
	assert.NotZero(t, fake.flags[0]&dbus.FlagNoReplyExpected)
}
