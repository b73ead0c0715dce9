package compliance

// Config holds the regulatory parameters the validator enforces. Zero
// values are replaced by the regulatory defaults in SetDefaults.
type Config struct {
	// MaxWeeklyHours is the ceiling on average weekly clinical hours
	// measured over the trailing duty window.
	MaxWeeklyHours float64 `json:"max_weekly_hours" yaml:"max_weekly_hours"`
	// DutyWindowDays is the trailing averaging window for duty hours.
	DutyWindowDays int `json:"duty_window_days" yaml:"duty_window_days"`
	// RestWindowDays is the trailing window that must contain a rest day.
	RestWindowDays int `json:"rest_window_days" yaml:"rest_window_days"`
	// RestHours is the minimum contiguous assignment-free period.
	RestHours float64 `json:"rest_hours" yaml:"rest_hours"`
	// SupervisionRatio is the default maximum juniors per supervisor.
	SupervisionRatio int `json:"supervision_ratio" yaml:"supervision_ratio"`
	// CallEquityThreshold is the allowed deviation from the cohort mean
	// call count before the soft equity rule flags a person.
	CallEquityThreshold float64 `json:"call_equity_threshold" yaml:"call_equity_threshold"`
	// HoursPerBlock is the clinical hour credit of one half-day block.
	HoursPerBlock float64 `json:"hours_per_block" yaml:"hours_per_block"`
}

// SetDefaults fills unset fields with the regulatory defaults.
func (c *Config) SetDefaults() {
	if c.MaxWeeklyHours <= 0 {
		c.MaxWeeklyHours = 80
	}
	if c.DutyWindowDays <= 0 {
		c.DutyWindowDays = 28
	}
	if c.RestWindowDays <= 0 {
		c.RestWindowDays = 7
	}
	if c.RestHours <= 0 {
		c.RestHours = 24
	}
	if c.SupervisionRatio <= 0 {
		c.SupervisionRatio = 2
	}
	if c.CallEquityThreshold <= 0 {
		c.CallEquityThreshold = 2
	}
	if c.HoursPerBlock <= 0 {
		c.HoursPerBlock = 4
	}
}
