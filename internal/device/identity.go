// Package device adapts the host to the updater: hardware identity, link
// state and restart.
package device

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrNoHardwareAddr = errors.New("device: no interface with a hardware address")

// ParseID decodes a hex device id. Colons and dashes are ignored, so MAC
// notation is accepted.
func ParseID(s string) ([]byte, error) {
	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return nil, fmt.Errorf("device: empty id")
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("device: id %q: %w", s, err)
	}
	return b, nil
}

// Identity returns the bytes used for rollout bucketing. A non-empty
// override wins; otherwise the hardware address of iface, or of the first
// non-loopback interface when iface is empty.
func Identity(iface, override string) ([]byte, error) {
	if override != "" {
		return ParseID(override)
	}
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return nil, err
		}
		if len(ifi.HardwareAddr) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoHardwareAddr, iface)
		}
		return append([]byte(nil), ifi.HardwareAddr...), nil
	}
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	return firstHardwareAddr(ifs)
}

func firstHardwareAddr(ifs []net.Interface) ([]byte, error) {
	for _, ifi := range ifs {
		if ifi.Flags&net.FlagLoopback != 0 || len(ifi.HardwareAddr) == 0 {
			continue
		}
		return append([]byte(nil), ifi.HardwareAddr...), nil
	}
	return nil, ErrNoHardwareAddr
}
