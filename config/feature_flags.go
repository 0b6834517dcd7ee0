package config

import "sort"

// RewardsConfig holds the toggles that change how XP is paid out.
type RewardsConfig struct {
	// OncePerTask pays a task's XP only on its first completion. When false,
	// undo followed by redo pays again.
	OncePerTask bool `env:"ONCE_PER_TASK" envDefault:"false"`
}

// Feature flag names as reported by Flags.
const (
	FeatureRewardsOncePerTask = "rewards.once_per_task"
)

// Flags returns every flag with its current state.
func (c *Config) Flags() map[string]bool {
	return map[string]bool{
		FeatureRewardsOncePerTask: c.Rewards.OncePerTask,
	}
}

// EnabledFlags returns the names of enabled flags, sorted.
func (c *Config) EnabledFlags() []string {
	var out []string
	for name, on := range c.Flags() {
		if on {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
