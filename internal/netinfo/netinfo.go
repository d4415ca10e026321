// Package netinfo answers the two network questions startup needs: which
// hardware address names this device, and whether the network is up yet.
package netinfo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrNoInterface is returned when no usable interface exists.
	ErrNoInterface = errors.New("netinfo: no interface with a hardware address")

	// ErrNotAssociated is returned when the network does not come up in time.
	ErrNotAssociated = errors.New("netinfo: network not associated")
)

// pollInterval is how often WaitAssociated re-checks the interface.
const pollInterval = 250 * time.Millisecond

// Iface is the subset of net.Interface the lookups use.
type Iface struct {
	Name         string
	Flags        net.Flags
	HardwareAddr net.HardwareAddr
	Addrs        []net.Addr
}

// Lister enumerates interfaces. System is the real one.
type Lister func() ([]Iface, error)

// System lists the host's interfaces.
func System() ([]Iface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	out := make([]Iface, 0, len(ifaces))
	for _, ifc := range ifaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			addrs = nil
		}
		out = append(out, Iface{
			Name:         ifc.Name,
			Flags:        ifc.Flags,
			HardwareAddr: ifc.HardwareAddr,
			Addrs:        addrs,
		})
	}
	return out, nil
}

// ParseMAC parses an override such as "aa:bb:cc:dd:ee:ff".
func ParseMAC(s string) (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("parsing mac %q: %w", s, err)
	}
	return mac, nil
}

// MAC returns the hardware address of the named interface, or of the first
// non-loopback interface that has one when name is empty.
func MAC(list Lister, name string) (net.HardwareAddr, error) {
	ifc, err := pick(list, name)
	if err != nil {
		return nil, err
	}
	return ifc.HardwareAddr, nil
}

func pick(list Lister, name string) (Iface, error) {
	ifaces, err := list()
	if err != nil {
		return Iface{}, err
	}
	for _, ifc := range ifaces {
		if name != "" {
			if ifc.Name != name {
				continue
			}
			if len(ifc.HardwareAddr) == 0 {
				return Iface{}, fmt.Errorf("%w: %s has none", ErrNoInterface, name)
			}
			return ifc, nil
		}
		if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) == 0 {
			continue
		}
		return ifc, nil
	}
	if name != "" {
		return Iface{}, fmt.Errorf("%w: %s not found", ErrNoInterface, name)
	}
	return Iface{}, ErrNoInterface
}

// Associated reports whether ifc is up with a routable unicast address.
func Associated(ifc Iface) bool {
	if ifc.Flags&net.FlagUp == 0 {
		return false
	}
	for _, a := range ifc.Addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && ip.IsGlobalUnicast() {
			return true
		}
	}
	return false
}

// WaitAssociated polls until the interface (chosen as for MAC) is up with
// an address, timeout elapses, or ctx ends. It returns the address-bearing
// interface name.
func WaitAssociated(ctx context.Context, list Lister, name string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tk := time.NewTicker(pollInterval)
	defer tk.Stop()

	for {
		ifc, err := pick(list, name)
		if err == nil && Associated(ifc) {
			return ifc.Name, nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrNotAssociated, err)
			}
			return "", fmt.Errorf("%w: %s after %s", ErrNotAssociated, ifc.Name, timeout)
		case <-tk.C:
		}
	}
}
