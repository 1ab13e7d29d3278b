// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	config := NewDefault()

	require.NotNil(t, config)

	// Check default values
	assert.Equal(t, 1, config.Processors)
	assert.Equal(t, int64(1), config.Epsilon)
	assert.Equal(t, int64(0), config.DeadlineMissTolerance)
	assert.Equal(t, "null", config.IIP)
	assert.False(t, config.Debug)
	assert.False(t, config.PartialOrderReduction)
	assert.False(t, config.Observability)
	assert.False(t, config.ContinueAfterMiss)

	// Verify defaults are reasonable
	assert.Positive(t, config.Workers)
	assert.Equal(t, time.Duration(0), config.WallClockBudget)
	assert.Equal(t, 0, config.PerDepthStateBudget)
}

func TestConfigLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(*Config)
	}{
		{
			name: "workers from environment",
			envVars: map[string]string{
				"NPSCHED_WORKERS": "4",
			},
			expected: func(config *Config) {
				assert.Equal(t, 4, config.Workers)
			},
		},
		{
			name: "wall clock budget from environment",
			envVars: map[string]string{
				"NPSCHED_WALL_CLOCK_BUDGET": "90s",
			},
			expected: func(config *Config) {
				assert.Equal(t, 90*time.Second, config.WallClockBudget)
			},
		},
		{
			name: "state budget from environment",
			envVars: map[string]string{
				"NPSCHED_STATE_BUDGET": "50000",
			},
			expected: func(config *Config) {
				assert.Equal(t, 50000, config.PerDepthStateBudget)
			},
		},
		{
			name: "iip from environment",
			envVars: map[string]string{
				"NPSCHED_IIP": "precautious-rm",
			},
			expected: func(config *Config) {
				assert.Equal(t, "precautious-rm", config.IIP)
			},
		},
		{
			name: "debug from environment",
			envVars: map[string]string{
				"NPSCHED_DEBUG": "true",
			},
			expected: func(config *Config) {
				assert.True(t, config.Debug)
			},
		},
		{
			name: "malformed values are ignored",
			envVars: map[string]string{
				"NPSCHED_WORKERS":           "not-a-number",
				"NPSCHED_WALL_CLOCK_BUDGET": "not-a-duration",
			},
			expected: func(config *Config) {
				assert.Positive(t, config.Workers)
				assert.Equal(t, time.Duration(0), config.WallClockBudget)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			config := NewDefault()
			config.Load()
			tt.expected(config)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: nil,
		},
		{
			name:    "zero processors",
			mutate:  func(c *Config) { c.Processors = 0 },
			wantErr: ErrInvalidProcessors,
		},
		{
			name:    "zero epsilon",
			mutate:  func(c *Config) { c.Epsilon = 0 },
			wantErr: ErrInvalidEpsilon,
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: ErrInvalidWorkers,
		},
		{
			name:    "unknown iip",
			mutate:  func(c *Config) { c.IIP = "clairvoyant" },
			wantErr: ErrUnknownIIP,
		},
		{
			name:    "critical window edf accepted",
			mutate:  func(c *Config) { c.IIP = "critical-window-edf" },
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefault()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
