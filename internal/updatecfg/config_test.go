package updatecfg

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/tinoosan/fota/internal/data"
)

func valid() Config {
	c := Default()
	c.FirmwareURL = "https://updates.example.com/fw.bin"
	c.VersionURL = "https://updates.example.com/version.txt"
	return c
}

func TestDefaults(t *testing.T) {
	c := Default()
	if c.CurrentVersion != "0.0.0" || c.CheckInterval != 5*time.Minute || c.MinDelay != time.Minute ||
		c.MaxDelay != 3*time.Minute || c.StaggeredRollout || c.RolloutPercentage != 50 || c.MaxRetries != 3 {
		t.Fatalf("defaults = %+v", c)
	}
}

func TestNormalize(t *testing.T) {
	c := Config{
		FirmwareURL:       "  http://h/fw.bin ",
		CurrentVersion:    "1.0.0\n",
		RolloutPercentage: 200,
		CheckInterval:     -time.Second,
		MinDelay:          -1,
		MaxRetries:        -2,
	}.Normalize()
	if c.FirmwareURL != "http://h/fw.bin" || c.CurrentVersion != "1.0.0" {
		t.Fatalf("strings not trimmed: %+v", c)
	}
	if c.RolloutPercentage != 100 || c.CheckInterval != 0 || c.MinDelay != 0 || c.MaxRetries != 0 {
		t.Fatalf("not clamped: %+v", c)
	}
	if c.ChunkSize != DefaultChunkSize || c.ProgressBlock != DefaultProgressBlock || c.MaxVersionSize != DefaultMaxVersionSize {
		t.Fatalf("sizes not defaulted: %+v", c)
	}
}

func TestClampPercent(t *testing.T) {
	for in, want := range map[int]uint8{-5: 0, 0: 0, 42: 42, 100: 100, 101: 100} {
		if got := ClampPercent(in); got != want {
			t.Errorf("ClampPercent(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cases := map[string]func(*Config){
		"no firmware url": func(c *Config) { c.FirmwareURL = "" },
		"no version url":  func(c *Config) { c.VersionURL = "" },
		"relative url":    func(c *Config) { c.VersionURL = "/version.txt" },
		"ftp scheme":      func(c *Config) { c.FirmwareURL = "ftp://h/fw.bin" },
		"no current":      func(c *Config) { c.CurrentVersion = "" },
		"unparseable url": func(c *Config) { c.FirmwareURL = "http://[::1" },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mut(&c)
			if err := c.Validate(); !errors.Is(err, data.ErrConfigInvalid) {
				t.Fatalf("err = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestLoadFromEnvAndFlags(t *testing.T) {
	t.Setenv("FOTA_VERSION_URL", "http://env.example.com/v")
	t.Setenv("FOTA_ROLLOUT_PERCENTAGE", "150")
	t.Setenv("FOTA_API_TOKEN", "secret")

	v := NewViper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(fs, v); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := fs.Parse([]string{"--firmware-url=http://flag.example.com/fw.bin", "--check-interval=90s"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	c := Load(v)
	if c.FirmwareURL != "http://flag.example.com/fw.bin" || c.VersionURL != "http://env.example.com/v" {
		t.Fatalf("urls = %q %q", c.FirmwareURL, c.VersionURL)
	}
	if c.CheckInterval != 90*time.Second || c.RolloutPercentage != 100 || c.MinDelay != DefaultMinDelay {
		t.Fatalf("config = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	s := LoadService(v)
	if s.APIToken != "secret" || s.Listen != "127.0.0.1:9090" || s.HistorySize != 100 {
		t.Fatalf("service = %+v", s)
	}
}
