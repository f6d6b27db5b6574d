package ratelimit

import (
	"errors"
	"slices"
	"time"

	"github.com/Proton-105/frostbank/pkg/config"
)

// ErrNoRule is returned when no limit is configured.
var ErrNoRule = errors.New("no rate limit rule")

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	return slices.Contains(r.config.Whitelist, userID)
}

// GetCommandLimit returns the limit and window for a specific command. Commands without
// their own rule return ErrNoRule.
func (r *Rules) GetCommandLimit(command string) (int, time.Duration, error) {
	switch command {
	case "transfer":
		return parseRule(r.config.Commands.Transfer)
	case "grant":
		return parseRule(r.config.Commands.Grant)
	case "withdraw":
		return parseRule(r.config.Commands.Withdraw)
	case "export":
		return parseRule(r.config.Commands.Export)
	default:
		return 0, 0, ErrNoRule
	}
}

// GetPerUserLimit returns the per-user rate limiting rule shared by all commands.
func (r *Rules) GetPerUserLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Limit <= 0 {
		return 0, 0, ErrNoRule
	}
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
