package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// CommandRestarter reboots the host by running a command, for example
// "systemctl reboot".
type CommandRestarter struct {
	Args []string
	log  *slog.Logger
}

func NewCommandRestarter(log *slog.Logger, args []string) *CommandRestarter {
	if log == nil {
		log = slog.Default()
	}
	return &CommandRestarter{Args: args, log: log.With("component", "restart")}
}

func (r *CommandRestarter) Restart(ctx context.Context) error {
	if len(r.Args) == 0 {
		return errors.New("device: no restart command configured")
	}
	r.log.Info("running restart command", "cmd", r.Args)
	out, err := exec.CommandContext(ctx, r.Args[0], r.Args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("device: restart %v: %w: %s", r.Args, err, out)
	}
	return nil
}
