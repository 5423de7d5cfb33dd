package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tinoosan/fota/internal/device"
	"github.com/tinoosan/fota/internal/fetch"
	"github.com/tinoosan/fota/internal/rollout"
	"github.com/tinoosan/fota/internal/updatecfg"
	"github.com/tinoosan/fota/internal/version"
)

func newCheckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the published version once and print the rollout decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := updatecfg.Load(v)
			if cfg.VersionURL == "" {
				return fmt.Errorf("%s is required", updatecfg.KeyVersionURL)
			}
			svc := updatecfg.LoadService(v)

			checker := version.NewChecker(fetch.NewClient(fetch.DefaultOptions()), cfg.MaxVersionSize)
			res, err := checker.Check(cmd.Context(), cfg.VersionURL, cfg.CurrentVersion)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "current:          %s\n", res.Current)
			fmt.Fprintf(out, "remote:           %s\n", res.Remote)
			fmt.Fprintf(out, "update available: %t\n", res.UpdateAvailable)

			identity, err := device.Identity(svc.Interface, svc.DeviceID)
			if err != nil {
				fmt.Fprintf(out, "rollout:          unknown (%v)\n", err)
				return nil
			}
			include := !cfg.StaggeredRollout || rollout.Decide(identity, cfg.RolloutPercentage)
			fmt.Fprintf(out, "rollout bucket:   %d (percentage %d, staggered %t)\n",
				rollout.Bucket(identity), cfg.RolloutPercentage, cfg.StaggeredRollout)
			fmt.Fprintf(out, "would install:    %t\n", res.UpdateAvailable && include)
			return nil
		},
	}
}
