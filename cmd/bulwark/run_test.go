package main

import (
	"testing"

	"github.com/sableworks/bulwark/pkg/config"
	"github.com/sableworks/bulwark/pkg/limits/ratelimit"
)

func TestApplyRateLimits(t *testing.T) {
	limiter := ratelimit.NewRateLimiter()

	err := applyRateLimits(limiter, []config.RateLimitConfig{
		{Provider: "openai", Model: "gpt-4", Rate: 10, Burst: 20},
		{Provider: "openai", Model: "*", Rate: 50, Burst: 100},
	})
	if err != nil {
		t.Fatalf("applyRateLimits failed: %v", err)
	}
	if got := len(limiter.Snapshot()); got != 2 {
		t.Errorf("configured %d limits, want 2", got)
	}
}

func TestApplyRateLimitsRejectsBadSpec(t *testing.T) {
	limiter := ratelimit.NewRateLimiter()

	err := applyRateLimits(limiter, []config.RateLimitConfig{
		{Provider: "openai", Model: "gpt-4", Rate: -1, Burst: 20},
	})
	if err == nil {
		t.Fatal("expected an error for a negative rate")
	}
}

func TestVersionDefaults(t *testing.T) {
	if Version == "" {
		t.Error("Version must have a default for unflagged builds")
	}
	if rootCmd.Version != Version {
		t.Error("root command version should track the Version variable")
	}
}
