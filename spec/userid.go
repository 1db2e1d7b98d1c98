package spec

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	userSigil            = '@'
	localDomainSeparator = ':'
	maxUserIDLength      = 255
)

var validLocalpartRegex = regexp.MustCompile(`^[0-9a-z_\-=./]+$`)

// A UserID identifies a matrix user. Senders of events and the state keys
// of membership events are user IDs.
// https://spec.matrix.org/v1.16/appendices/#user-identifiers
type UserID struct {
	local  string
	domain ServerName
}

// NewUserID parses and validates a user ID. Localparts from the historical
// character set, which allows any printable ASCII except ':', are only
// accepted if allowHistoricalIDs is set.
func NewUserID(id string, allowHistoricalIDs bool) (*UserID, error) {
	// At least a sigil, a separator, a localpart and a domain.
	if n := len(id); n < 4 || n > maxUserIDLength {
		return nil, fmt.Errorf("length %d is not within the bounds 4-%d", n, maxUserIDLength)
	}
	if id[0] != userSigil {
		return nil, fmt.Errorf("first character is not '%c'", userSigil)
	}
	local, domain, found := strings.Cut(id[1:], string(localDomainSeparator))
	if !found {
		return nil, fmt.Errorf("at least one '%c' is expected in the user id", localDomainSeparator)
	}
	if !ServerName(domain).Valid() {
		return nil, fmt.Errorf("domain %q is invalid", domain)
	}
	if err := validateLocalpart(local, allowHistoricalIDs); err != nil {
		return nil, err
	}
	return &UserID{local: local, domain: ServerName(domain)}, nil
}

func validateLocalpart(local string, allowHistoricalIDs bool) error {
	if !allowHistoricalIDs {
		if !validLocalpartRegex.MatchString(local) {
			return fmt.Errorf("local part %q contains invalid characters", local)
		}
		return nil
	}
	// https://spec.matrix.org/v1.16/appendices/#historical-user-ids
	for _, r := range local {
		if r < 0x21 || r == localDomainSeparator || r > 0x7E {
			return fmt.Errorf("local part %q contains invalid characters from historical set", local)
		}
	}
	return nil
}

// String returns the full user ID, sigil included.
func (u UserID) String() string {
	return string(userSigil) + u.local + string(localDomainSeparator) + string(u.domain)
}

func (u UserID) Local() string {
	return u.local
}

func (u UserID) Domain() ServerName {
	return u.domain
}
