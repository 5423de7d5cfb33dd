package updatecfg

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys read from flags, FOTA_* environment variables or a config file.
const (
	KeyFirmwareURL    = "firmware_url"
	KeyVersionURL     = "version_url"
	KeyCurrentVersion = "current_version"
	KeyCheckInterval  = "check_interval"
	KeyMinDelay       = "min_delay"
	KeyMaxDelay       = "max_delay"
	KeyStaggered      = "staggered_rollout"
	KeyRolloutPercent = "rollout_percentage"
	KeyMaxRetries     = "max_retries"
	KeyOfflineBackoff = "offline_backoff"
	KeyChunkSize      = "chunk_size"
	KeyProgressBlock  = "progress_block"

	KeyListen         = "listen"
	KeyAPIToken       = "api_token"
	KeyInterface      = "interface"
	KeyDeviceID       = "device_id"
	KeySinkPath       = "sink_path"
	KeyRestartCommand = "restart_command"
	KeyDatabaseURL    = "database_url"
	KeyHistorySize    = "history_size"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyLogFile        = "log_file"
)

// Service carries the host-side settings of the daemon around the engine.
type Service struct {
	Listen         string
	APIToken       string
	Interface      string
	DeviceID       string
	SinkPath       string
	RestartCommand []string
	DatabaseURL    string
	HistorySize    int
	LogLevel       string
	LogFormat      string
	LogFile        string
}

// NewViper returns a viper instance reading FOTA_* environment variables,
// with every key defaulted.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault(KeyFirmwareURL, "")
	v.SetDefault(KeyVersionURL, "")
	v.SetDefault(KeyCurrentVersion, d.CurrentVersion)
	v.SetDefault(KeyCheckInterval, d.CheckInterval)
	v.SetDefault(KeyMinDelay, d.MinDelay)
	v.SetDefault(KeyMaxDelay, d.MaxDelay)
	v.SetDefault(KeyStaggered, d.StaggeredRollout)
	v.SetDefault(KeyRolloutPercent, int(d.RolloutPercentage))
	v.SetDefault(KeyMaxRetries, d.MaxRetries)
	v.SetDefault(KeyOfflineBackoff, d.OfflineBackoff)
	v.SetDefault(KeyChunkSize, d.ChunkSize)
	v.SetDefault(KeyProgressBlock, d.ProgressBlock)

	v.SetDefault(KeyListen, "127.0.0.1:9090")
	v.SetDefault(KeyAPIToken, "")
	v.SetDefault(KeyInterface, "")
	v.SetDefault(KeyDeviceID, "")
	v.SetDefault(KeySinkPath, "/var/lib/fota/firmware.bin")
	v.SetDefault(KeyRestartCommand, []string{"systemctl", "reboot"})
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyHistorySize, 100)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
	return v
}

// BindFlags registers the update policy flags on fs and binds them to v.
// Flag names use dashes where keys use underscores.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	d := Default()
	fs.String(flagName(KeyFirmwareURL), "", "URL of the firmware image")
	fs.String(flagName(KeyVersionURL), "", "URL of the published version token")
	fs.String(flagName(KeyCurrentVersion), d.CurrentVersion, "version of the running firmware")
	fs.Duration(flagName(KeyCheckInterval), d.CheckInterval, "nominal interval between version checks")
	fs.Duration(flagName(KeyMinDelay), d.MinDelay, "lower bound of the random delay before the first check")
	fs.Duration(flagName(KeyMaxDelay), d.MaxDelay, "upper bound of the random delay before the first check")
	fs.Bool(flagName(KeyStaggered), d.StaggeredRollout, "only update devices inside the rollout percentage")
	fs.Int(flagName(KeyRolloutPercent), int(d.RolloutPercentage), "percentage of devices updating immediately (0-100)")
	fs.Int(flagName(KeyMaxRetries), d.MaxRetries, "failed cycles before the retry counter resets")
	fs.String(flagName(KeyListen), "127.0.0.1:9090", "control API listen address (empty disables)")
	fs.String(flagName(KeySinkPath), "/var/lib/fota/firmware.bin", "path the firmware image is committed to")
	fs.String(flagName(KeyInterface), "", "network interface used for identity and link checks")
	fs.String(flagName(KeyDeviceID), "", "hex device id overriding the hardware address")
	fs.String(flagName(KeyDatabaseURL), "", "PostgreSQL URL for update history (empty keeps it in memory)")
	fs.String(flagName(KeyLogLevel), "info", "log level: debug, info, warn, error")

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bindErr := v.BindPFlag(key, f); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	return err
}

func flagName(key string) string { return strings.ReplaceAll(key, "_", "-") }

// Load builds a normalized Config from v.
func Load(v *viper.Viper) Config {
	c := Config{
		FirmwareURL:       v.GetString(KeyFirmwareURL),
		VersionURL:        v.GetString(KeyVersionURL),
		CurrentVersion:    v.GetString(KeyCurrentVersion),
		CheckInterval:     v.GetDuration(KeyCheckInterval),
		MinDelay:          v.GetDuration(KeyMinDelay),
		MaxDelay:          v.GetDuration(KeyMaxDelay),
		StaggeredRollout:  v.GetBool(KeyStaggered),
		RolloutPercentage: ClampPercent(v.GetInt(KeyRolloutPercent)),
		MaxRetries:        v.GetInt(KeyMaxRetries),
		OfflineBackoff:    v.GetDuration(KeyOfflineBackoff),
		ChunkSize:         v.GetInt(KeyChunkSize),
		ProgressBlock:     v.GetInt64(KeyProgressBlock),
		MaxVersionSize:    DefaultMaxVersionSize,
	}
	return c.Normalize()
}

// LoadService reads the daemon settings from v.
func LoadService(v *viper.Viper) Service {
	hs := v.GetInt(KeyHistorySize)
	if hs <= 0 {
		hs = 100
	}
	return Service{
		Listen:         strings.TrimSpace(v.GetString(KeyListen)),
		APIToken:       v.GetString(KeyAPIToken),
		Interface:      v.GetString(KeyInterface),
		DeviceID:       v.GetString(KeyDeviceID),
		SinkPath:       v.GetString(KeySinkPath),
		RestartCommand: v.GetStringSlice(KeyRestartCommand),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		HistorySize:    hs,
		LogLevel:       v.GetString(KeyLogLevel),
		LogFormat:      v.GetString(KeyLogFormat),
		LogFile:        v.GetString(KeyLogFile),
	}
}
