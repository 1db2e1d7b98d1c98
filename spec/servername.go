package spec

import (
	"net"
	"strconv"
	"strings"
)

// A ServerName is the name a matrix homeserver is identified by: a DNS
// name, an IPv4 address or a bracketed IPv6 address, optionally followed
// by a port.
// https://spec.matrix.org/v1.16/appendices/#server-name
type ServerName string

// HostPort splits the server name into a host and a port without
// validating either. The port is -1 if there is none.
func (s ServerName) HostPort() (host string, port int) {
	name := string(s)
	i := strings.LastIndexByte(name, ':')
	if i < 0 {
		return name, -1
	}
	p, err := strconv.ParseUint(name[i+1:], 10, 16)
	if err != nil {
		// Not a port, so probably part of an IPv6 host.
		return name, -1
	}
	return name[:i], int(p)
}

// Valid reports whether the server name is well formed.
func (s ServerName) Valid() bool {
	host, _ := s.HostPort()
	switch {
	case host == "":
		return false
	case host[0] == '[':
		return len(host) > 2 && host[len(host)-1] == ']' && net.ParseIP(host[1:len(host)-1]) != nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return true
	}
	return strings.IndexFunc(host, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '.')
	}) == -1
}

// ServerNameOf returns the server name part of a namespaced matrix
// identifier such as a user ID or a version 1/2 event ID. Returns false if
// the identifier has no server name.
func ServerNameOf(id string) (ServerName, bool) {
	_, domain, found := strings.Cut(id, string(localDomainSeparator))
	if !found || domain == "" {
		return "", false
	}
	return ServerName(domain), true
}
