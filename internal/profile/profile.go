// Package profile loads, generates and stores named CPU settings profiles.
//
// The on-disk format is line based: an optional "# name: X" header, then one
// row per CPU spec: "<cpus> <min-MHz> <max-MHz> <governor> [online]" where
// "-" leaves a field at its hardware default and the CPU spec accepts single
// indices, ranges and comma lists. Malformed rows are skipped, not fatal.
package profile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/cpupowerctl/internal/logger"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs"
)

// Entry is the target state for one CPU. Frequencies are kHz; zero means the
// field was left at "-" and no hardware limit was available to fill it in. An
// empty governor or energy preference means "keep current".
type Entry struct {
	CPU        int
	FreqMin    int
	FreqMax    int
	Governor   string
	EnergyPref string
	Online     bool
}

// Profile is a named mapping from CPU index to a settings entry.
type Profile struct {
	Name     string
	System   bool
	Builtin  bool
	FilePath string
	Settings map[int]Entry
}

// Deletable reports whether the profile may be removed or overwritten.
// System and builtin profiles are protected.
func (p *Profile) Deletable() bool {
	return !p.System && !p.Builtin
}

func (p *Profile) valid() bool {
	return p.Name != "" && len(p.Settings) > 0
}

// CPUs returns the profile's CPU indices in ascending order.
func (p *Profile) CPUs() []int {
	cpus := make([]int, 0, len(p.Settings))
	for cpu := range p.Settings {
		cpus = append(cpus, cpu)
	}
	sort.Ints(cpus)
	return cpus
}

// parseFile reads one profile file. Hardware limits from the accessor fill
// in "-" frequency fields when available.
func parseFile(accessor *sysfs.Accessor, path string, system bool) (*Profile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	prof := &Profile{
		System:   system,
		FilePath: path,
		Settings: make(map[int]Entry),
	}

	scanner := bufio.NewScanner(file)
	firstLine := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if firstLine {
			firstLine = false
			if strings.HasPrefix(line, "# name:") {
				prof.Name = strings.TrimSpace(strings.TrimPrefix(line, "# name:"))
				continue
			}
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			logger.Warn().Str("path", path).Str("line", line).Msg("Skipping malformed profile row")
			continue
		}

		cpus := sysfs.ParseCPUList(fields[0])
		if len(cpus) == 0 {
			logger.Warn().Str("path", path).Str("line", line).Msg("Skipping profile row with no CPUs")
			continue
		}

		fmin := parseMHz(fields[1])
		fmax := parseMHz(fields[2])

		governor := fields[3]
		if governor == "-" {
			governor = ""
		}

		online := true
		if len(fields) > 4 {
			switch strings.ToLower(fields[4]) {
			case "y", "yes", "1", "true":
				online = true
			default:
				online = false
			}
		}

		for _, cpu := range cpus {
			entry := Entry{
				CPU:      cpu,
				FreqMin:  fmin,
				FreqMax:  fmax,
				Governor: governor,
				Online:   online,
			}
			if accessor != nil {
				hwMin, hwMax := accessor.FreqLimits(cpu)
				if entry.FreqMin == 0 {
					entry.FreqMin = hwMin
				}
				if entry.FreqMax == 0 {
					entry.FreqMax = hwMax
				}
			}
			prof.Settings[cpu] = entry
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if prof.Name == "" {
		prof.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return prof, nil
}

// parseMHz converts a MHz field to kHz; "-" and unparseable values yield 0.
func parseMHz(field string) int {
	if field == "-" {
		return 0
	}
	mhz, err := strconv.Atoi(field)
	if err != nil || mhz <= 0 {
		return 0
	}
	return mhz * 1000
}

// write persists the profile in the text format, frequencies back in MHz.
func (p *Profile) write() error {
	var b strings.Builder
	fmt.Fprintf(&b, "# name: %s\n\n", p.Name)
	b.WriteString("# CPU\tMin\tMax\tGovernor\tOnline\n")

	for _, cpu := range p.CPUs() {
		entry := p.Settings[cpu]
		governor := entry.Governor
		if governor == "" {
			governor = "-"
		}
		online := "y"
		if !entry.Online {
			online = "n"
		}
		fmt.Fprintf(&b, "%d\t%d\t%d\t%s\t%s\n",
			cpu, entry.FreqMin/1000, entry.FreqMax/1000, governor, online)
	}

	return os.WriteFile(p.FilePath, []byte(b.String()), 0o644)
}
