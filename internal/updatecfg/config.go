package updatecfg

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tinoosan/fota/internal/data"
)

const (
	DefaultCurrentVersion = "0.0.0"
	DefaultCheckInterval  = 5 * time.Minute
	DefaultMinDelay       = 60 * time.Second
	DefaultMaxDelay       = 180 * time.Second
	DefaultRolloutPercent = 50
	DefaultMaxRetries     = 3
	DefaultOfflineBackoff = 10 * time.Second
	DefaultChunkSize      = 128
	DefaultProgressBlock  = 10240
	DefaultMaxVersionSize = 1 << 10
)

// Config is the update policy for one engine run. It is a value: the engine
// keeps its own copy and never observes later changes made by the caller.
type Config struct {
	FirmwareURL    string
	VersionURL     string
	CurrentVersion string

	CheckInterval time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration

	StaggeredRollout  bool
	RolloutPercentage uint8

	MaxRetries     int
	OfflineBackoff time.Duration

	ChunkSize      int
	ProgressBlock  int64
	MaxVersionSize int64
}

// Default returns the stock policy. URLs are left empty and must be set.
func Default() Config {
	return Config{
		CurrentVersion:    DefaultCurrentVersion,
		CheckInterval:     DefaultCheckInterval,
		MinDelay:          DefaultMinDelay,
		MaxDelay:          DefaultMaxDelay,
		RolloutPercentage: DefaultRolloutPercent,
		MaxRetries:        DefaultMaxRetries,
		OfflineBackoff:    DefaultOfflineBackoff,
		ChunkSize:         DefaultChunkSize,
		ProgressBlock:     DefaultProgressBlock,
		MaxVersionSize:    DefaultMaxVersionSize,
	}
}

// ClampPercent bounds an arbitrary integer to [0,100].
func ClampPercent(p int) uint8 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return uint8(p)
}

// Normalize trims strings, clamps the rollout percentage and replaces
// negative durations with zero.
func (c Config) Normalize() Config {
	c.FirmwareURL = strings.TrimSpace(c.FirmwareURL)
	c.VersionURL = strings.TrimSpace(c.VersionURL)
	c.CurrentVersion = strings.TrimSpace(c.CurrentVersion)
	if c.RolloutPercentage > 100 {
		c.RolloutPercentage = 100
	}
	for _, d := range []*time.Duration{&c.CheckInterval, &c.MinDelay, &c.MaxDelay, &c.OfflineBackoff} {
		if *d < 0 {
			*d = 0
		}
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ProgressBlock <= 0 {
		c.ProgressBlock = DefaultProgressBlock
	}
	if c.MaxVersionSize <= 0 {
		c.MaxVersionSize = DefaultMaxVersionSize
	}
	return c
}

// Validate reports a data.ErrConfigInvalid error when the engine must not
// start with c.
func (c Config) Validate() error {
	if c.FirmwareURL == "" || c.VersionURL == "" {
		return fmt.Errorf("%w: firmware or version URL not set", data.ErrConfigInvalid)
	}
	for name, raw := range map[string]string{"firmware": c.FirmwareURL, "version": c.VersionURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: %s URL: %w", data.ErrConfigInvalid, name, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %s URL %q must be absolute http(s)", data.ErrConfigInvalid, name, raw)
		}
	}
	if c.CurrentVersion == "" {
		return fmt.Errorf("%w: current version not set", data.ErrConfigInvalid)
	}
	return nil
}
