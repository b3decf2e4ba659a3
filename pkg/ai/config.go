package ai

import "encoding/json"

// Config is the structured strategy configuration. The recognized fields are
// deliberately small; unknown JSON keys are ignored.
type Config struct {
	Seed          *uint64 `json:"seed,omitempty"`
	MemoryRecency bool    `json:"memory_recency,omitempty"`
	Difficulty    *int    `json:"difficulty,omitempty"`
}

// ParseConfig decodes a JSON config blob, tolerating unknown keys. A nil or
// empty blob yields the zero config.
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge overlays an override onto a profile config field by field; set
// override fields win.
func (c Config) Merge(override Config) Config {
	out := c
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if override.MemoryRecency {
		out.MemoryRecency = true
	}
	if override.Difficulty != nil {
		out.Difficulty = override.Difficulty
	}
	return out
}

// SeedOr returns the configured seed or the fallback.
func (c Config) SeedOr(fallback uint64) uint64 {
	if c.Seed != nil {
		return *c.Seed
	}
	return fallback
}
