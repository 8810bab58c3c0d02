package ratelimit

// Config holds rate limiting configuration for the query engine's REST
// transport. Limits are keyed by table name instead of tool name: a
// table under heavy write load (secondary indexes, search indexes,
// view fan-out) can be throttled independently of the rest of the
// schema.
type Config struct {
	Enabled bool         `mapstructure:"enabled"`
	Global  LimitConfig  `mapstructure:"global"`
	Tables  []TableLimit `mapstructure:"tables"`
}

// LimitConfig defines rate limit parameters
type LimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// TableLimit defines per-table rate limiting
type TableLimit struct {
	Name              string  `mapstructure:"name"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// DefaultConfig returns the default rate limiting configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Tables: []TableLimit{
			{
				Name:              "search",
				RequestsPerSecond: 20,
				BurstSize:         40,
			},
			{
				Name:              "upsert",
				RequestsPerSecond: 30,
				BurstSize:         60,
			},
		},
	}
}

// GetTableLimit returns the limit configuration for a specific table.
// Returns nil if no specific limit is configured for the table.
func (c *Config) GetTableLimit(table string) *TableLimit {
	for _, t := range c.Tables {
		if t.Name == table {
			return &t
		}
	}
	return nil
}
