package helper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"codeberg.org/mutker/cpupowerctl/internal/history"
	"codeberg.org/mutker/cpupowerctl/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	BusName       = "org.codeberg.cpupowerctl"
	ObjectPath    = dbus.ObjectPath("/org/codeberg/cpupowerctl")
	InterfaceName = "org.codeberg.cpupowerctl.Helper"
)

// Service is the privileged mutation service. It owns the authorization
// gate, the mutation engine and the idle lifecycle: any handled call resets
// the idle timer, and the timer firing (or quit) terminates the process.
// Calls are processed one at a time.
type Service struct {
	mu          sync.Mutex
	sysfs       Sysfs
	engine      *Engine
	auth        *Authorizer
	recorder    history.Recorder
	idleTimeout time.Duration
	idleTimer   *time.Timer
	quitOnce    sync.Once
	done        chan struct{}
}

func NewService(accessor Sysfs, auth *Authorizer, recorder history.Recorder, idleTimeout time.Duration) *Service {
	return &Service{
		sysfs:       accessor,
		engine:      NewEngine(accessor),
		auth:        auth,
		recorder:    recorder,
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
}

// Register claims the well-known bus name and exports the helper interface.
// Failure is permanent: a taken name or unreachable bus means another helper
// owns the system, and this process has nothing left to do.
func (s *Service) Register(conn *dbus.Conn) error {
	errFactory := errors.New()

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return errFactory.Wrap(ErrBusUnreachable, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errFactory.WithData(ErrNameTaken, BusName)
	}

	if err := conn.ExportMethodTable(s.methodTable(), ObjectPath, InterfaceName); err != nil {
		return errFactory.Wrap(ErrRegisterFailed, err)
	}

	s.mu.Lock()
	s.startIdleTimer()
	s.mu.Unlock()

	logger.Info().
		Str("name", BusName).
		Str("path", string(ObjectPath)).
		Msg("Helper service registered")

	return nil
}

// Done is closed once the service has decided to terminate, whether through
// quit or the idle timeout.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Shutdown requests immediate termination. Safe to call more than once.
func (s *Service) Shutdown() {
	s.quitOnce.Do(func() {
		close(s.done)
	})
}

func (s *Service) startIdleTimer() {
	if s.idleTimeout <= 0 {
		return
	}
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		logger.Info().Msg("Idle timeout reached, shutting down helper service")
		s.Shutdown()
	})
}

func (s *Service) resetIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Reset(s.idleTimeout)
	}
}

// track serializes call handling and counts the call as activity.
func (s *Service) track() func() {
	s.mu.Lock()
	s.resetIdleTimer()
	return s.mu.Unlock
}

func (s *Service) methodTable() map[string]interface{} {
	return map[string]interface{}{
		"isauthorized":               s.isAuthorized,
		"get_cpus_available":         s.cpusAvailable,
		"get_cpus_online":            s.cpusOnline,
		"get_cpus_offline":           s.cpusOffline,
		"get_cpus_present":           s.cpusPresent,
		"get_cpu_governors":          s.cpuGovernors,
		"get_cpu_energy_preferences": s.cpuEnergyPreferences,
		"get_cpu_governor":           s.cpuGovernor,
		"get_cpu_energy_preference":  s.cpuEnergyPreference,
		"get_cpu_frequencies":        s.cpuFrequencies,
		"get_cpu_limits":             s.cpuLimits,
		"cpu_allowed_offline":        s.cpuAllowedOffline,
		"update_cpu_settings":        s.updateCPUSettings,
		"update_cpu_governor":        s.updateCPUGovernor,
		"update_cpu_energy_prefs":    s.updateCPUEnergyPrefs,
		"set_cpu_online":             s.setCPUOnline,
		"set_cpu_offline":            s.setCPUOffline,
		"quit":                       s.quit,
	}
}

// Queries

func (s *Service) isAuthorized(sender dbus.Sender) (int32, *dbus.Error) {
	defer s.track()()

	if s.auth.Authorize(string(sender), ActionID) {
		return 1, nil
	}
	return 0, nil
}

func (s *Service) cpusAvailable() ([]int32, *dbus.Error) {
	defer s.track()()
	// Available CPUs are the present ones that can be brought online
	return toInt32s(s.sysfs.PresentCPUs()), nil
}

func (s *Service) cpusOnline() ([]int32, *dbus.Error) {
	defer s.track()()
	return toInt32s(s.sysfs.OnlineCPUs()), nil
}

func (s *Service) cpusOffline() ([]int32, *dbus.Error) {
	defer s.track()()
	return toInt32s(s.sysfs.OfflineCPUs()), nil
}

func (s *Service) cpusPresent() ([]int32, *dbus.Error) {
	defer s.track()()
	return toInt32s(s.sysfs.PresentCPUs()), nil
}

func (s *Service) cpuGovernors(cpu int32) ([]string, *dbus.Error) {
	defer s.track()()

	if !s.unitUsable(int(cpu)) {
		return []string{}, nil
	}
	return s.sysfs.AvailableGovernors(int(cpu)), nil
}

func (s *Service) cpuEnergyPreferences(cpu int32) ([]string, *dbus.Error) {
	defer s.track()()

	if !s.unitUsable(int(cpu)) {
		return []string{}, nil
	}
	return s.sysfs.AvailableEnergyPrefs(int(cpu)), nil
}

func (s *Service) cpuGovernor(cpu int32) (string, *dbus.Error) {
	defer s.track()()

	if !s.unitUsable(int(cpu)) {
		return "", nil
	}
	return s.sysfs.CurrentGovernor(int(cpu)), nil
}

func (s *Service) cpuEnergyPreference(cpu int32) (string, *dbus.Error) {
	defer s.track()()

	if !s.unitUsable(int(cpu)) {
		return "", nil
	}
	return s.sysfs.CurrentEnergyPref(int(cpu)), nil
}

func (s *Service) cpuFrequencies(cpu int32) ([]int32, *dbus.Error) {
	defer s.track()()

	if !s.unitUsable(int(cpu)) {
		return []int32{0, 0}, nil
	}
	minFreq, maxFreq := s.sysfs.ScalingFreqs(int(cpu))
	return []int32{int32(minFreq), int32(maxFreq)}, nil
}

func (s *Service) cpuLimits(cpu int32) ([]int32, *dbus.Error) {
	defer s.track()()

	if !s.unitUsable(int(cpu)) {
		return []int32{0, 0}, nil
	}
	hwMin, hwMax := s.sysfs.FreqLimits(int(cpu))
	return []int32{int32(hwMin), int32(hwMax)}, nil
}

func (s *Service) cpuAllowedOffline(cpu int32) (int32, *dbus.Error) {
	defer s.track()()

	if s.sysfs.AllowedOffline(int(cpu)) {
		return 1, nil
	}
	return 0, nil
}

// Mutations

func (s *Service) updateCPUSettings(sender dbus.Sender, cpu, freqMin, freqMax int32) (int32, *dbus.Error) {
	defer s.track()()

	if !s.auth.Authorize(string(sender), ActionID) {
		logger.Warn().Str("sender", string(sender)).Msg("update_cpu_settings denied")
		return CodeUnavailable, nil
	}

	err := s.engine.SetFrequencyBounds(int(cpu), int(freqMin), int(freqMax))
	code := s.logOutcome("update_cpu_settings", int(cpu), err)
	s.record(sender, int(cpu), "update_cpu_settings", fmt.Sprintf("%d-%d", freqMin, freqMax), code)
	return code, nil
}

func (s *Service) updateCPUGovernor(sender dbus.Sender, cpu int32, governor string) (int32, *dbus.Error) {
	defer s.track()()

	if !s.auth.Authorize(string(sender), ActionID) {
		return CodeUnavailable, nil
	}

	err := s.engine.SetGovernor(int(cpu), governor)
	code := s.logOutcome("update_cpu_governor", int(cpu), err)
	s.record(sender, int(cpu), "update_cpu_governor", governor, code)
	return code, nil
}

func (s *Service) updateCPUEnergyPrefs(sender dbus.Sender, cpu int32, pref string) (int32, *dbus.Error) {
	defer s.track()()

	if !s.auth.Authorize(string(sender), ActionID) {
		return CodeUnavailable, nil
	}

	err := s.engine.SetEnergyPref(int(cpu), pref)
	code := s.logOutcome("update_cpu_energy_prefs", int(cpu), err)
	s.record(sender, int(cpu), "update_cpu_energy_prefs", pref, code)
	return code, nil
}

func (s *Service) setCPUOnline(sender dbus.Sender, cpu int32) (int32, *dbus.Error) {
	defer s.track()()

	if !s.auth.Authorize(string(sender), ActionID) {
		return CodeUnavailable, nil
	}

	err := s.engine.SetOnlineState(int(cpu), true)
	code := s.logOutcome("set_cpu_online", int(cpu), err)
	s.record(sender, int(cpu), "set_cpu_online", "1", code)
	return code, nil
}

func (s *Service) setCPUOffline(sender dbus.Sender, cpu int32) (int32, *dbus.Error) {
	defer s.track()()

	if !s.auth.Authorize(string(sender), ActionID) {
		return CodeUnavailable, nil
	}

	err := s.engine.SetOnlineState(int(cpu), false)
	code := s.logOutcome("set_cpu_offline", int(cpu), err)
	s.record(sender, int(cpu), "set_cpu_offline", "0", code)
	return code, nil
}

func (s *Service) quit() *dbus.Error {
	logger.Info().Msg("Quit requested, shutting down helper service")
	s.Shutdown()
	return nil
}

func (s *Service) unitUsable(cpu int) bool {
	return s.sysfs.IsPresent(cpu) && s.sysfs.IsOnline(cpu)
}

func (s *Service) logOutcome(method string, cpu int, err error) int32 {
	code := ReturnCode(err)
	if err != nil {
		logger.Warn().Err(err).Str("method", method).Int("cpu", cpu).Msg("Mutation failed")
	} else {
		logger.Debug().Str("method", method).Int("cpu", cpu).Msg("Mutation applied")
	}
	return code
}

func (s *Service) record(sender dbus.Sender, cpu int, action, value string, code int32) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	entry := &history.Entry{
		Timestamp: time.Now(),
		CPU:       cpu,
		Action:    action,
		Value:     value,
		Caller:    string(sender),
		Code:      int(code),
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to record history entry")
	}
}

func toInt32s(values []int) []int32 {
	result := make([]int32, 0, len(values))
	for _, v := range values {
		result = append(result, int32(v))
	}
	return result
}
