package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tinoosan/fota/internal/logging"
	"github.com/tinoosan/fota/internal/updatecfg"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := updatecfg.NewViper()
	var configFile string

	root := &cobra.Command{
		Use:          "fota",
		Short:        "Over-the-air firmware updater",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", configFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	if err := updatecfg.BindFlags(root.PersistentFlags(), v); err != nil {
		panic(err)
	}

	root.AddCommand(newRunCmd(v), newCheckCmd(v))
	return root
}

// newLogger builds the process logger from v.
func newLogger(v *viper.Viper) (*slog.Logger, io.Closer, error) {
	svc := updatecfg.LoadService(v)
	return logging.New(logging.Options{Level: svc.LogLevel, Format: svc.LogFormat, File: svc.LogFile})
}
