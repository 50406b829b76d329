package encounter

// AttemptConfig configures the attempt-split heuristics (§4.7.6).
//
// The defaults below match the original Rust AttemptConfig::default() impl,
// which is also what spec.md documents. That same source file's own
// #[cfg(test)] assertion checks 60.0/90.0 instead of 80.0/95.0 — a stale
// test left behind after the Default impl changed, not a second valid
// configuration. We follow the Default impl and spec.md, not the stale
// test (see DESIGN.md Open Question Decision 1).
type AttemptConfig struct {
	MinHPDecreasePct       float64
	HPRollbackThresholdPct float64
	SplitCooldownMs        uint64
	EnableWipeDetection    bool
	EnableHPRollback       bool
}

// DefaultAttemptConfig returns the spec-documented defaults.
func DefaultAttemptConfig() AttemptConfig {
	return AttemptConfig{
		MinHPDecreasePct:       80.0,
		HPRollbackThresholdPct: 95.0,
		SplitCooldownMs:        2000,
		EnableWipeDetection:    true,
		EnableHPRollback:       true,
	}
}
