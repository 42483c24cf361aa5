package wire

import (
	"fmt"
	"net"
	"net/netip"
)

// Address is an IPv4 address plus a TCP port. Its canonical string form is
// also used as the node identifier primary key in the node catalog.
type Address struct {
	IP   [4]byte
	Port uint16
}

// AddressFromAddrPort converts a netip.AddrPort to an Address. ap must hold
// (or be mappable to) an IPv4 address.
func AddressFromAddrPort(ap netip.AddrPort) (Address, error) {
	a := ap.Addr()
	if a.Is4In6() {
		a = a.Unmap()
	}
	if !a.Is4() {
		return Address{}, fmt.Errorf("wire: address %s is not ipv4", ap)
	}
	return Address{IP: a.As4(), Port: ap.Port()}, nil
}

// AddressFromNetAddr extracts an Address from a net.Addr (e.g. a TCP peer
// address returned by a connection).
func AddressFromNetAddr(a net.Addr) (Address, error) {
	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return Address{}, fmt.Errorf("wire: split host port: %w", err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Address{}, fmt.Errorf("wire: invalid ip %q", host)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return Address{}, fmt.Errorf("wire: address %q is not ipv4", host)
	}
	var p uint16
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return Address{}, fmt.Errorf("wire: invalid port %q: %w", port, err)
	}
	var out Address
	copy(out.IP[:], ip4)
	out.Port = p
	return out, nil
}

// String renders a in canonical a.b.c.d:port form. This is also the node
// identifier used as a primary key in the node catalog.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.IPString(), a.Port)
}

// IPString renders just the dotted IPv4 portion of a.
func (a Address) IPString() string {
	return fmt.Sprintf("%d.%d.%d.%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3])
}

// WithPort returns a copy of a with the port replaced. Used to substitute the
// payload-carried listen port over the ephemeral TCP source port (see
// Kind.AskIp / Kind.Notify / Kind.RequestFromClient).
func (a Address) WithPort(port uint16) Address {
	a.Port = port
	return a
}

// TCPAddr returns a's representation as a *net.TCPAddr for dialing.
func (a Address) TCPAddr() *net.TCPAddr {
	ip := make(net.IP, 4)
	copy(ip, a.IP[:])
	return &net.TCPAddr{IP: ip, Port: int(a.Port)}
}

// ParseNodeID parses the canonical "ip:port" node identifier string produced
// by Address.String back into an Address.
func ParseNodeID(s string) (Address, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("wire: parse node id %q: %w", s, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Address{}, fmt.Errorf("wire: parse node id %q: invalid ip", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return Address{}, fmt.Errorf("wire: parse node id %q: not ipv4", s)
	}
	var p uint16
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return Address{}, fmt.Errorf("wire: parse node id %q: invalid port: %w", s, err)
	}
	var a Address
	copy(a.IP[:], ip4)
	a.Port = p
	return a, nil
}
