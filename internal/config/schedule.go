package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Trigger names
const (
	TriggerPublishToday   = "publish-today"
	TriggerPostStatistics = "post-statistics"
	TriggerRemindTonight  = "remind-tonight"
	TriggerAdminEscalate  = "admin-escalate"
	TriggerApplyPenalties = "apply-penalties"
	TriggerEnforceRemoval = "enforce-removal"
	TriggerReconcile      = "reconcile-roster"
)

// ScheduleEntry is one row of the trigger table.
type ScheduleEntry struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
	Enabled  bool   `yaml:"enabled"`
}

// Schedule maps trigger name to its entry.
type Schedule map[string]ScheduleEntry

// Names returns the trigger names in a stable order.
func (s Schedule) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultSchedule is the built-in trigger table in timezone tz.
func DefaultSchedule(tz string) Schedule {
	at := func(cron string) ScheduleEntry {
		return ScheduleEntry{Cron: cron, Timezone: tz, Enabled: true}
	}
	return Schedule{
		TriggerPublishToday:   at("0 6 * * *"),
		TriggerPostStatistics: at("5 6 * * *"),
		TriggerRemindTonight:  at("0 21 * * *"),
		TriggerAdminEscalate:  at("0 21 * * *"),
		TriggerApplyPenalties: at("1 0 * * *"),
		TriggerEnforceRemoval: at("0 0 * * *"),
		TriggerReconcile:      at("0 0 * * *"),
	}
}

type scheduleOverride struct {
	Cron     *string `yaml:"cron"`
	Timezone *string `yaml:"timezone"`
	Enabled  *bool   `yaml:"enabled"`
}

// LoadSchedule returns the defaults overlaid with the YAML file at path, if any.
//
//	remind-tonight:
//	  cron: "30 20 * * *"
//	post-statistics:
//	  enabled: false
func LoadSchedule(path, tz string) (Schedule, error) {
	s := DefaultSchedule(tz)
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	return applyOverrides(s, raw)
}

func applyOverrides(s Schedule, raw []byte) (Schedule, error) {
	var overrides map[string]scheduleOverride
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse schedule file: %w", err)
	}

	for name, o := range overrides {
		e, ok := s[name]
		if !ok {
			return nil, fmt.Errorf("unknown trigger %q in schedule file", name)
		}
		if o.Cron != nil {
			e.Cron = *o.Cron
		}
		if o.Timezone != nil {
			e.Timezone = *o.Timezone
		}
		if o.Enabled != nil {
			e.Enabled = *o.Enabled
		}
		s[name] = e
	}
	return s, nil
}
