package device

import (
	"log/slog"
	"net"
)

// Link reports connectivity from interface state: up, not loopback and
// holding at least one unicast address.
type Link struct {
	Interface string
	log       *slog.Logger

	// list is swapped in tests.
	list func() ([]net.Interface, error)
	// addrs is swapped in tests.
	addrs func(net.Interface) ([]net.Addr, error)
}

// NewLink watches iface, or every interface when iface is empty.
func NewLink(log *slog.Logger, iface string) *Link {
	if log == nil {
		log = slog.Default()
	}
	return &Link{
		Interface: iface,
		log:       log.With("component", "link"),
		list:      net.Interfaces,
		addrs:     func(ifi net.Interface) ([]net.Addr, error) { return ifi.Addrs() },
	}
}

func (l *Link) Connected() bool {
	ifs, err := l.list()
	if err != nil {
		l.log.Warn("list interfaces", "err", err)
		return false
	}
	for _, ifi := range ifs {
		if l.Interface != "" && ifi.Name != l.Interface {
			continue
		}
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := l.addrs(ifi)
		if err != nil {
			l.log.Debug("interface addrs", "iface", ifi.Name, "err", err)
			continue
		}
		if len(addrs) > 0 {
			return true
		}
	}
	return false
}
