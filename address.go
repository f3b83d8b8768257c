package netcore

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Family is the caller's address family preference.
type Family int

const (
	FamilyAny Family = iota
	FamilyIPv4
	FamilyIPv6
)

// Address is an IPv4 or IPv6 endpoint bound to a stream transport. It is
// cheaply copyable and owned by the socket it initialized.
type Address struct {
	family int // unix.AF_INET or unix.AF_INET6
	ip     [16]byte
	port   uint16
	sotype int
	proto  int
}

// NewAddress builds an Address from a textual host and a port. Literal IPs
// are used as-is, names go through the resolver and the first result wins.
func NewAddress(host string, port uint16, family Family) (*Address, error) {
	if ip := net.ParseIP(host); ip != nil {
		return addressFromIP(ip, port, family)
	}
	list := ResolveAddress(host, port, family)
	if len(list) == 0 {
		return nil, badAddressText
	}
	return list[0], nil
}

// ParseAddress parses "host:port" text. The port part may be a well known
// scheme name ("http", "ssh", ...).
func ParseAddress(text string) (*Address, error) {
	host, portText, err := net.SplitHostPort(text)
	if err != nil {
		return nil, badAddressText
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		p := GetSchemePort(portText)
		if p == 0 {
			return nil, badAddressText
		}
		port = uint64(p)
	}
	return NewAddress(host, uint16(port), FamilyAny)
}

func addressFromIP(ip net.IP, port uint16, family Family) (*Address, error) {
	addr := &Address{
		port:   port,
		sotype: unix.SOCK_STREAM,
		proto:  unix.IPPROTO_TCP,
	}
	ip4 := ip.To4()
	if ip4 != nil && family != FamilyIPv6 {
		addr.family = unix.AF_INET
		copy(addr.ip[:4], ip4)
		return addr, nil
	}
	if ip16 := ip.To16(); ip4 == nil && ip16 != nil && family != FamilyIPv4 {
		addr.family = unix.AF_INET6
		copy(addr.ip[:], ip16)
		return addr, nil
	}
	return nil, badAddressText
}

var resolveCache *ristretto.Cache

func init() {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 14,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	if err != nil {
		log.Error().Msgf("can't init resolver cache: %+v", err)
		return
	}
	resolveCache = cache
}

// ResolveAddress resolves a host name into the list of matching addresses.
// Names that do not resolve produce an empty list, not a failure. Lookup
// results are cached, the port is stamped per call.
func ResolveAddress(host string, port uint16, family Family) []*Address {
	key := host + "|" + strconv.Itoa(int(family))
	var ips []net.IP
	if resolveCache != nil {
		if cached, ok := resolveCache.Get(key); ok {
			ips = cached.([]net.IP)
		}
	}
	if ips == nil {
		resolved, err := net.LookupIP(host)
		if err != nil {
			if log.Debug().Enabled() {
				log.Debug().Msgf("can't resolve host %s: %+v", host, err)
			}
			return nil
		}
		ips = resolved
		if resolveCache != nil {
			resolveCache.Set(key, ips, int64(len(ips)))
		}
	}
	list := make([]*Address, 0, len(ips))
	for _, ip := range ips {
		addr, err := addressFromIP(ip, port, family)
		if err != nil {
			continue
		}
		list = append(list, addr)
	}
	return list
}

func (a *Address) Port() uint16 {
	return a.port
}

func (a *Address) IsIPv6() bool {
	return a.family == unix.AF_INET6
}

// RawBytes returns the binary address, 4 or 16 bytes per family.
func (a *Address) RawBytes() []byte {
	if a.family == unix.AF_INET {
		return a.ip[:4]
	}
	return a.ip[:]
}

func (a *Address) IP() net.IP {
	return net.IP(a.RawBytes())
}

func (a *Address) String() string {
	return net.JoinHostPort(a.IP().String(), strconv.Itoa(int(a.port)))
}

// AppendText renders the printable form into buf, reusing its storage.
func (a *Address) AppendText(buf []byte) []byte {
	return append(buf[:0], a.String()...)
}

func (a *Address) Clone() *Address {
	clone := *a
	return &clone
}

func (a *Address) Equal(other *Address) bool {
	if other == nil {
		return false
	}
	return a.family == other.family && a.port == other.port && a.ip == other.ip
}

// Sockaddr converts the address for the kernel calls.
func (a *Address) Sockaddr() unix.Sockaddr {
	if a.family == unix.AF_INET {
		sa := &unix.SockaddrInet4{Port: int(a.port)}
		copy(sa.Addr[:], a.ip[:4])
		return sa
	}
	sa := &unix.SockaddrInet6{Port: int(a.port)}
	copy(sa.Addr[:], a.ip[:])
	return sa
}

func (a *Address) setFromSockaddr(sa unix.Sockaddr) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		a.family = unix.AF_INET
		a.ip = [16]byte{}
		copy(a.ip[:4], s.Addr[:])
		a.port = uint16(s.Port)
	case *unix.SockaddrInet6:
		a.family = unix.AF_INET6
		copy(a.ip[:], s.Addr[:])
		a.port = uint16(s.Port)
	}
	a.sotype = unix.SOCK_STREAM
	a.proto = unix.IPPROTO_TCP
}

// Bind binds fd to the address, optionally enabling address reuse first.
func (a *Address) Bind(fd int, reuse bool) error {
	if reuse {
		err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if err != nil {
			return os.NewSyscallError("setsockopt SO_REUSEADDR", err)
		}
	}
	err := unix.Bind(fd, a.Sockaddr())
	if err != nil {
		return os.NewSyscallError("bind", err)
	}
	return nil
}

// LocalOf reads back the address fd is actually bound to. Useful after
// binding port zero.
func LocalOf(fd int) (*Address, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	addr := &Address{}
	addr.setFromSockaddr(sa)
	return addr, nil
}

// CreateAddressPool produces count clones of the address, used by acceptor
// threads as recyclable slots to avoid per-accept allocation.
func (a *Address) CreateAddressPool(count int) []*Address {
	if count <= 0 {
		return nil
	}
	pool := make([]*Address, count)
	for i := range pool {
		pool[i] = a.Clone()
	}
	return pool
}

type schemePort struct {
	port   uint16
	scheme string
}

var schemePortList = []schemePort{
	{21, "ftp"},
	{22, "ssh"},
	{23, "telnet"},
	{25, "smtp"},
	{53, "dns"},
	{80, "http"},
	{80, "ws"},
	{119, "nntp"},
	{143, "imap"},
	{389, "ldap"},
	{443, "https"},
	{443, "wss"},
	{465, "smtps"},
	{554, "rtsp"},
	{636, "ldaps"},
	{853, "dnss"},
	{993, "imaps"},
	{5060, "sip"},
	{5061, "sips"},
	{5222, "xmpp"},
}

// GetSchemePort returns the well known port for a scheme name, 0 if unknown.
func GetSchemePort(scheme string) uint16 {
	scheme = strings.ToLower(scheme)
	for _, sp := range schemePortList {
		if sp.scheme == scheme {
			return sp.port
		}
	}
	return 0
}
