package vectorstore

import (
	"fmt"
	"regexp"
)

// collectionNamePattern accepts names usable by every provider: a letter
// or underscore followed by letters, digits and underscores.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,254}$`)

// ValidateCollectionName rejects names that some provider cannot store.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("invalid collection name %q: must match %s", name, collectionNamePattern.String())
	}
	return nil
}
