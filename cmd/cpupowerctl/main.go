package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"codeberg.org/mutker/cpupowerctl/internal/client"
	"codeberg.org/mutker/cpupowerctl/internal/config"
	"codeberg.org/mutker/cpupowerctl/internal/logger"
	"codeberg.org/mutker/cpupowerctl/internal/profile"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs"
)

const usage = `Usage: cpupowerctl <command> [options]

Commands:
  show                       List all CPUs with their current settings
  info <cpu>                 Show details for one CPU
  set [options]              Change settings (see: cpupowerctl set -h)
  profile list               List available profiles
  profile show <name>        Show a profile's entries
  profile apply <name>       Apply a profile
  profile save <name>        Save the current settings as a profile
  profile delete <name>      Delete a user profile
  auth                       Check (and acquire) authorization
  quit                       Ask the helper service to exit now
`

var cfg *config.Config

func main() {
	var err error
	cfg, err = config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, false)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	accessor := sysfs.NewWithRoot(cfg.SysfsRoot)

	switch os.Args[1] {
	case "show":
		err = cmdShow(accessor)
	case "info":
		err = cmdInfo(accessor, os.Args[2:])
	case "set":
		err = cmdSet(accessor, os.Args[2:])
	case "profile":
		err = cmdProfile(accessor, os.Args[2:])
	case "auth":
		err = cmdAuth()
	case "quit":
		err = cmdQuit()
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "cpupowerctl: %v\n", err)
		os.Exit(1)
	}
}

// cmdShow prefers the helper's view of the system so the output reflects
// what mutations would operate on; an unreachable helper degrades to a
// direct sysfs read.
func cmdShow(accessor *sysfs.Accessor) error {
	if helperStub, err := client.Connect(); err == nil {
		if err := showFromHelper(helperStub, accessor); err == nil {
			return nil
		}
		logger.Debug().Msg("Helper queries failed, reading sysfs directly")
	}
	return showFromSysfs(accessor)
}

func showFromHelper(helperStub *client.Helper, accessor *sysfs.Accessor) error {
	present, err := helperStub.CPUsPresent()
	if err != nil {
		return err
	}
	offline, err := helperStub.CPUsOffline()
	if err != nil {
		return err
	}
	offlineSet := make(map[int]bool, len(offline))
	for _, c := range offline {
		offlineSet[c] = true
	}

	printShowHeader()
	for _, cpu := range present {
		governor, err := helperStub.CPUGovernor(cpu)
		if err != nil {
			return err
		}
		freqs, err := helperStub.CPUFrequencies(cpu)
		if err != nil {
			return err
		}
		pref, err := helperStub.CPUEnergyPreference(cpu)
		if err != nil {
			return err
		}

		online := !offlineSet[cpu]
		if !online && governor == "" {
			governor = sysfs.GovernorOffline
		}
		var minFreq, maxFreq int
		if len(freqs) == 2 {
			minFreq, maxFreq = freqs[0], freqs[1]
		}
		// The helper interface exposes no instantaneous frequency
		printShowRow(cpu, online, governor, accessor.CurrentFreq(cpu), minFreq, maxFreq, pref)
	}
	return nil
}

func showFromSysfs(accessor *sysfs.Accessor) error {
	printShowHeader()
	for _, cpu := range accessor.PresentCPUs() {
		minFreq, maxFreq := accessor.ScalingFreqs(cpu)
		printShowRow(cpu, accessor.IsOnline(cpu), accessor.CurrentGovernor(cpu),
			accessor.CurrentFreq(cpu), minFreq, maxFreq, accessor.CurrentEnergyPref(cpu))
	}
	return nil
}

func printShowHeader() {
	fmt.Printf("%-5s %-8s %-14s %-10s %-15s %s\n",
		"CPU", "Online", "Governor", "Freq", "Range (MHz)", "EPP")
}

func printShowRow(cpu int, online bool, governor string, curFreq, minFreq, maxFreq int, pref string) {
	state := "yes"
	if !online {
		state = "no"
	}
	fmt.Printf("%-5d %-8s %-14s %-10d %-15s %s\n",
		cpu, state, governor, curFreq/1000,
		fmt.Sprintf("%d-%d", minFreq/1000, maxFreq/1000), pref)
}

func cmdInfo(accessor *sysfs.Accessor, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cpupowerctl info <cpu>")
	}
	cpu, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid CPU index %q", args[0])
	}
	if !accessor.IsPresent(cpu) {
		return fmt.Errorf("CPU %d is not present", cpu)
	}

	if helperStub, err := client.Connect(); err == nil {
		if err := infoFromHelper(helperStub, accessor, cpu); err == nil {
			return nil
		}
		logger.Debug().Msg("Helper queries failed, reading sysfs directly")
	}
	return infoFromSysfs(accessor, cpu)
}

func infoFromHelper(helperStub *client.Helper, accessor *sysfs.Accessor, cpu int) error {
	onlineCPUs, err := helperStub.CPUsOnline()
	if err != nil {
		return err
	}
	online := false
	for _, c := range onlineCPUs {
		if c == cpu {
			online = true
			break
		}
	}
	allowedOffline, err := helperStub.CPUAllowedOffline(cpu)
	if err != nil {
		return err
	}
	governor, err := helperStub.CPUGovernor(cpu)
	if err != nil {
		return err
	}
	governors, err := helperStub.CPUGovernors(cpu)
	if err != nil {
		return err
	}
	limits, err := helperStub.CPULimits(cpu)
	if err != nil {
		return err
	}
	freqs, err := helperStub.CPUFrequencies(cpu)
	if err != nil {
		return err
	}
	prefs, err := helperStub.CPUEnergyPreferences(cpu)
	if err != nil {
		return err
	}
	pref, err := helperStub.CPUEnergyPreference(cpu)
	if err != nil {
		return err
	}

	fmt.Printf("CPU %d\n", cpu)
	fmt.Printf("  Online:            %v\n", online)
	fmt.Printf("  Allowed offline:   %v\n", allowedOffline)
	fmt.Printf("  Governor:          %s\n", governor)
	fmt.Printf("  Governors:         %v\n", governors)
	if len(limits) == 2 {
		fmt.Printf("  Hardware range:    %d-%d MHz\n", limits[0]/1000, limits[1]/1000)
	}
	if len(freqs) == 2 {
		fmt.Printf("  Scaling range:     %d-%d MHz\n", freqs[0]/1000, freqs[1]/1000)
	}
	fmt.Printf("  Current frequency: %d MHz\n", accessor.CurrentFreq(cpu)/1000)

	if len(prefs) > 0 {
		fmt.Printf("  Energy preference: %s\n", pref)
		fmt.Printf("  Preferences:       %v\n", prefs)
	}
	printFrequencySteps(accessor, cpu)
	return nil
}

func infoFromSysfs(accessor *sysfs.Accessor, cpu int) error {
	hwMin, hwMax := accessor.FreqLimits(cpu)
	minFreq, maxFreq := accessor.ScalingFreqs(cpu)

	fmt.Printf("CPU %d\n", cpu)
	fmt.Printf("  Online:            %v\n", accessor.IsOnline(cpu))
	fmt.Printf("  Allowed offline:   %v\n", accessor.AllowedOffline(cpu))
	fmt.Printf("  Governor:          %s\n", accessor.CurrentGovernor(cpu))
	fmt.Printf("  Governors:         %v\n", accessor.AvailableGovernors(cpu))
	fmt.Printf("  Hardware range:    %d-%d MHz\n", hwMin/1000, hwMax/1000)
	fmt.Printf("  Scaling range:     %d-%d MHz\n", minFreq/1000, maxFreq/1000)
	fmt.Printf("  Current frequency: %d MHz\n", accessor.CurrentFreq(cpu)/1000)

	if accessor.EnergyPrefAvailable(cpu) {
		fmt.Printf("  Energy preference: %s\n", accessor.CurrentEnergyPref(cpu))
		fmt.Printf("  Preferences:       %v\n", accessor.AvailableEnergyPrefs(cpu))
	}
	printFrequencySteps(accessor, cpu)
	return nil
}

func printFrequencySteps(accessor *sysfs.Accessor, cpu int) {
	steps := accessor.AvailableFrequencies(cpu)
	if len(steps) == 0 {
		return
	}
	mhz := make([]int, 0, len(steps))
	for _, s := range steps {
		mhz = append(mhz, s/1000)
	}
	fmt.Printf("  Frequency steps:   %v MHz\n", mhz)
}

func cmdSet(accessor *sysfs.Accessor, args []string) error {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	cpu := fs.Int("cpu", -1, "CPU index to change")
	all := fs.Bool("all", false, "Change all available CPUs")
	minMHz := fs.Int("min", 0, "Scaling minimum in MHz")
	maxMHz := fs.Int("max", 0, "Scaling maximum in MHz")
	governor := fs.String("governor", "", "Scaling governor")
	epp := fs.String("epp", "", "Energy performance preference")
	online := fs.Bool("online", false, "Bring the CPU online")
	offline := fs.Bool("offline", false, "Take the CPU offline")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *online && *offline {
		return fmt.Errorf("-online and -offline are mutually exclusive")
	}

	helperStub, err := client.Connect()
	if err != nil {
		return fmt.Errorf("helper service not reachable, the system is read-only: %w", err)
	}

	var cpus []int
	switch {
	case *all:
		if cpus, err = helperStub.CPUsAvailable(); err != nil {
			cpus = accessor.AvailableCPUs()
		}
	case *cpu >= 0:
		if !accessor.IsPresent(*cpu) {
			return fmt.Errorf("CPU %d is not present", *cpu)
		}
		cpus = []int{*cpu}
	default:
		return fmt.Errorf("select a CPU with -cpu or use -all")
	}

	sched := client.NewScheduler(helperStub)
	sched.BeginBatch()
	var applied []*client.Settings
	for _, c := range cpus {
		settings := client.NewSettings(accessor, sched, c)
		if *minMHz > 0 {
			settings.SetFreqMin(*minMHz * 1000)
		}
		if *maxMHz > 0 {
			settings.SetFreqMax(*maxMHz * 1000)
		}
		if *governor != "" {
			settings.SetGovernor(*governor)
		}
		if *epp != "" {
			settings.SetEnergyPref(*epp)
		}
		if *online {
			settings.SetOnline(true)
		}
		if *offline {
			settings.SetOnline(false)
		}
		settings.Apply()
		applied = append(applied, settings)
	}
	sched.EndBatch()

	batchErr := waitBatch(sched)

	// Re-read ground truth whatever the outcome: the kernel may have
	// adjusted or refused what was written
	for _, settings := range applied {
		settings.Refresh()
	}
	if batchErr != nil {
		return batchErr
	}

	printShowHeader()
	for _, settings := range applied {
		minFreq, maxFreq := settings.FreqBounds()
		printShowRow(settings.CPU(), settings.Online(), settings.Governor(),
			accessor.CurrentFreq(settings.CPU()), minFreq, maxFreq, settings.EnergyPref())
	}
	return nil
}

// cmdQuit asks a running helper service to exit instead of waiting out its
// idle timeout.
func cmdQuit() error {
	helperStub, err := client.Connect()
	if err != nil {
		return fmt.Errorf("helper service not reachable: %w", err)
	}
	return helperStub.Quit()
}

func cmdProfile(accessor *sysfs.Accessor, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cpupowerctl profile <list|show|apply|save|delete> [name]")
	}

	userDir := cfg.UserProfileDir
	if userDir == "" {
		userDir = profile.DefaultUserDir()
	}
	manager := profile.NewManager(accessor, cfg.SystemProfileDir, userDir)

	switch args[0] {
	case "list":
		for _, name := range manager.Names() {
			prof, err := manager.Get(name)
			if err != nil {
				continue
			}
			kind := "user"
			switch {
			case prof.Builtin:
				kind = "builtin"
			case prof.System:
				kind = "system"
			}
			fmt.Printf("%-30s %s\n", name, kind)
		}
		return nil

	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: cpupowerctl profile show <name>")
		}
		prof, err := manager.Get(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%-5s %-10s %-10s %-14s %s\n", "CPU", "Min (MHz)", "Max (MHz)", "Governor", "Online")
		for _, c := range prof.CPUs() {
			entry := prof.Settings[c]
			governor := entry.Governor
			if governor == "" {
				governor = "-"
			}
			fmt.Printf("%-5d %-10d %-10d %-14s %v\n",
				c, entry.FreqMin/1000, entry.FreqMax/1000, governor, entry.Online)
		}
		return nil

	case "apply":
		if len(args) < 2 {
			return fmt.Errorf("usage: cpupowerctl profile apply <name>")
		}
		prof, err := manager.Get(args[1])
		if err != nil {
			return err
		}
		helperStub, err := client.Connect()
		if err != nil {
			return fmt.Errorf("helper service not reachable, the system is read-only: %w", err)
		}
		sched := client.NewScheduler(helperStub)
		client.ApplyProfile(sched, accessor, prof)
		return waitBatch(sched)

	case "save":
		if len(args) < 2 {
			return fmt.Errorf("usage: cpupowerctl profile save <name>")
		}
		return saveProfile(manager, accessor, args[1])

	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: cpupowerctl profile delete <name>")
		}
		return manager.Delete(args[1])

	default:
		return fmt.Errorf("unknown profile command %q", args[0])
	}
}

// saveProfile snapshots the current state of every available CPU.
func saveProfile(manager *profile.Manager, accessor *sysfs.Accessor, name string) error {
	var entries []profile.Entry
	for _, cpu := range accessor.AvailableCPUs() {
		entry := profile.Entry{CPU: cpu, Online: accessor.IsOnline(cpu)}
		if entry.Online {
			entry.FreqMin, entry.FreqMax = accessor.ScalingFreqs(cpu)
			entry.Governor = accessor.CurrentGovernor(cpu)
			entry.EnergyPref = accessor.CurrentEnergyPref(cpu)
		}
		entries = append(entries, entry)
	}

	if err := manager.Create(name, entries); err != nil {
		return err
	}
	fmt.Printf("Saved profile %q\n", name)
	return nil
}

// cmdAuth pre-flights the policy check; this may raise an interactive
// prompt.
func cmdAuth() error {
	helperStub, err := client.Connect()
	if err != nil {
		return fmt.Errorf("helper service not reachable: %w", err)
	}

	authorized, err := helperStub.IsAuthorized()
	if err != nil {
		return err
	}
	if !authorized {
		return fmt.Errorf("not authorized to change CPU settings")
	}
	fmt.Println("Authorized")
	return nil
}

// waitBatch consumes scheduler events until the batch completes and reports
// per-operation failures.
func waitBatch(sched *client.Scheduler) error {
	for event := range sched.Events() {
		if event.Type != client.EventBatchDone {
			continue
		}
		result := event.Data.(client.BatchDoneData)
		if result.Succeeded {
			return nil
		}
		for _, failure := range result.Errors {
			fmt.Fprintf(os.Stderr, "failed: %s\n", failure)
		}
		return fmt.Errorf("%d operation(s) failed", len(result.Errors))
	}
	return nil
}
