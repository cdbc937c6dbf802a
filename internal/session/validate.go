package session

import (
	"fmt"
	"regexp"
)

var identityRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateIdentity checks that identity conforms to session naming rules.
// The identity doubles as a directory name and a store key, so it is kept to
// a conservative character set.
func ValidateIdentity(identity string) error {
	if !identityRegexp.MatchString(identity) {
		return fmt.Errorf("invalid session identity %q: must match ^[a-z0-9_-]{1,64}$", identity)
	}
	return nil
}
