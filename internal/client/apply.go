package client

import (
	"fmt"

	"codeberg.org/mutker/cpupowerctl/internal/logger"
	"codeberg.org/mutker/cpupowerctl/internal/profile"
	"codeberg.org/mutker/cpupowerctl/internal/sysfs"
)

// ApplyProfile enqueues a profile as one batch: per CPU, the online
// transition first (gating), then frequency bounds, governor and energy
// preference. Committing a CPU to offline skips its remaining fields, and
// CPU 0 never gets an online transition at all. CPUs the system does not
// have are skipped with a warning. The caller owns the batch: completion
// arrives on the scheduler's event channel.
func ApplyProfile(sched *Scheduler, accessor *sysfs.Accessor, prof *profile.Profile) {
	available := accessor.AvailableCPUs()

	sched.BeginBatch()
	for _, cpu := range prof.CPUs() {
		entry := prof.Settings[cpu]

		if !containsInt(available, cpu) {
			logger.Warn().Int("cpu", cpu).Str("profile", prof.Name).
				Msg("Profile references a CPU the system does not have")
			continue
		}

		group := fmt.Sprintf("cpu%d", cpu)

		if cpu != 0 {
			if entry.Online {
				sched.Enqueue(Operation{
					Method:      "set_cpu_online",
					Args:        []interface{}{int32(cpu)},
					Description: fmt.Sprintf("set CPU %d online", cpu),
					Group:       group,
					Gating:      true,
				})
			} else {
				sched.Enqueue(Operation{
					Method:      "set_cpu_offline",
					Args:        []interface{}{int32(cpu)},
					Description: fmt.Sprintf("set CPU %d offline", cpu),
					Group:       group,
					Gating:      true,
				})
				continue
			}
		}

		if entry.FreqMin > 0 && entry.FreqMax > 0 {
			sched.Enqueue(Operation{
				Method:      "update_cpu_settings",
				Args:        []interface{}{int32(cpu), int32(entry.FreqMin), int32(entry.FreqMax)},
				Description: fmt.Sprintf("set CPU %d frequency bounds %d-%d kHz", cpu, entry.FreqMin, entry.FreqMax),
				Group:       group,
			})
		}

		if entry.Governor != "" {
			sched.Enqueue(Operation{
				Method:      "update_cpu_governor",
				Args:        []interface{}{int32(cpu), entry.Governor},
				Description: fmt.Sprintf("set CPU %d governor %s", cpu, entry.Governor),
				Group:       group,
			})
		}

		if entry.EnergyPref != "" && accessor.EnergyPrefAvailable(cpu) {
			sched.Enqueue(Operation{
				Method:      "update_cpu_energy_prefs",
				Args:        []interface{}{int32(cpu), entry.EnergyPref},
				Description: fmt.Sprintf("set CPU %d energy preference %s", cpu, entry.EnergyPref),
				Group:       group,
			})
		}
	}
	sched.EndBatch()
}

func containsInt(list []int, value int) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
