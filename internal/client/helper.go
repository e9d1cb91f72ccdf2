package client

import (
	"context"
	"time"

	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.codeberg.cpupowerctl"
	objectPath    = dbus.ObjectPath("/org/codeberg/cpupowerctl")
	interfaceName = "org.codeberg.cpupowerctl.Helper"

	// Long enough to survive an interactive authorization prompt
	defaultCallTimeout = 150 * time.Second
)

// Caller issues one IPC call to the privileged service and reports its
// integer result. The scheduler depends on this seam rather than on a live
// bus connection.
type Caller interface {
	Connected() bool
	Call(method string, args ...interface{}) (int32, error)
}

// Helper is the client stub for the privileged mutation service. All
// mutating traffic goes through Call; the typed wrappers cover the query
// surface.
type Helper struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	timeout time.Duration
}

// Connect attaches to the system bus. The service itself is bus-activated,
// so a successful connection is enough to start issuing calls.
func Connect() (*Helper, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.New().Wrap(ErrNotConnected, err)
	}

	return &Helper{
		conn:    conn,
		obj:     conn.Object(busName, objectPath),
		timeout: defaultCallTimeout,
	}, nil
}

func (h *Helper) Connected() bool {
	return h != nil && h.obj != nil
}

// Call issues a method on the helper interface and stores its int32 reply.
func (h *Helper) Call(method string, args ...interface{}) (int32, error) {
	errFactory := errors.New()

	if !h.Connected() {
		return -1, errFactory.New(ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var code int32
	call := h.obj.CallWithContext(ctx, interfaceName+"."+method, 0, args...)
	if call.Err != nil {
		return -1, errFactory.Wrap(ErrBusCall, call.Err)
	}
	if err := call.Store(&code); err != nil {
		return -1, errFactory.Wrap(ErrBusCall, err)
	}

	return code, nil
}

func (h *Helper) callInts(method string, args ...interface{}) ([]int, error) {
	errFactory := errors.New()

	if !h.Connected() {
		return nil, errFactory.New(ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var values []int32
	call := h.obj.CallWithContext(ctx, interfaceName+"."+method, 0, args...)
	if call.Err != nil {
		return nil, errFactory.Wrap(ErrBusCall, call.Err)
	}
	if err := call.Store(&values); err != nil {
		return nil, errFactory.Wrap(ErrBusCall, err)
	}

	result := make([]int, 0, len(values))
	for _, v := range values {
		result = append(result, int(v))
	}
	return result, nil
}

func (h *Helper) callStrings(method string, args ...interface{}) ([]string, error) {
	errFactory := errors.New()

	if !h.Connected() {
		return nil, errFactory.New(ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var values []string
	call := h.obj.CallWithContext(ctx, interfaceName+"."+method, 0, args...)
	if call.Err != nil {
		return nil, errFactory.Wrap(ErrBusCall, call.Err)
	}
	if err := call.Store(&values); err != nil {
		return nil, errFactory.Wrap(ErrBusCall, err)
	}
	return values, nil
}

func (h *Helper) callString(method string, args ...interface{}) (string, error) {
	errFactory := errors.New()

	if !h.Connected() {
		return "", errFactory.New(ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var value string
	call := h.obj.CallWithContext(ctx, interfaceName+"."+method, 0, args...)
	if call.Err != nil {
		return "", errFactory.Wrap(ErrBusCall, call.Err)
	}
	if err := call.Store(&value); err != nil {
		return "", errFactory.Wrap(ErrBusCall, err)
	}
	return value, nil
}

// IsAuthorized pre-flights the policy check for the calling user. This may
// block on an interactive prompt.
func (h *Helper) IsAuthorized() (bool, error) {
	code, err := h.Call("isauthorized")
	if err != nil {
		return false, err
	}
	return code == 1, nil
}

func (h *Helper) CPUsAvailable() ([]int, error) {
	return h.callInts("get_cpus_available")
}

func (h *Helper) CPUsOnline() ([]int, error) {
	return h.callInts("get_cpus_online")
}

func (h *Helper) CPUsOffline() ([]int, error) {
	return h.callInts("get_cpus_offline")
}

func (h *Helper) CPUsPresent() ([]int, error) {
	return h.callInts("get_cpus_present")
}

func (h *Helper) CPUGovernors(cpu int) ([]string, error) {
	return h.callStrings("get_cpu_governors", int32(cpu))
}

func (h *Helper) CPUEnergyPreferences(cpu int) ([]string, error) {
	return h.callStrings("get_cpu_energy_preferences", int32(cpu))
}

func (h *Helper) CPUGovernor(cpu int) (string, error) {
	return h.callString("get_cpu_governor", int32(cpu))
}

func (h *Helper) CPUEnergyPreference(cpu int) (string, error) {
	return h.callString("get_cpu_energy_preference", int32(cpu))
}

// CPUFrequencies returns the current scaling bounds as [min, max] in kHz.
func (h *Helper) CPUFrequencies(cpu int) ([]int, error) {
	return h.callInts("get_cpu_frequencies", int32(cpu))
}

// CPULimits returns the hardware bounds as [min, max] in kHz.
func (h *Helper) CPULimits(cpu int) ([]int, error) {
	return h.callInts("get_cpu_limits", int32(cpu))
}

func (h *Helper) CPUAllowedOffline(cpu int) (bool, error) {
	code, err := h.Call("cpu_allowed_offline", int32(cpu))
	if err != nil {
		return false, err
	}
	return code == 1, nil
}

// Quit asks the service to terminate. No reply is expected.
func (h *Helper) Quit() error {
	if !h.Connected() {
		return errors.New().New(ErrNotConnected)
	}
	return h.obj.Call(interfaceName+".quit", dbus.FlagNoReplyExpected).Err
}
