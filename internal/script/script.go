// Package script defines the story script data model: a single entry
// (target account, wait interval, text) and an ordered collection of
// entries loaded from one worksheet.
package script

import (
	"fmt"
	"strings"
)

// Entry is one script row. Entries are immutable once loaded.
type Entry struct {
	Account  string // target account name, normalized upper-case
	Interval int    // seconds to wait after publishing this entry
	Text     string // toot body
	Row      int    // 1-based row index in the source worksheet
}

// Collection is the ordered script list for one worksheet. It is owned
// exclusively by the active session and is never mutated after load.
type Collection struct {
	Name    string
	Entries []Entry
}

// Len returns the number of entries.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

// String summarizes the collection for logs.
func (c *Collection) String() string {
	return fmt.Sprintf("%s (%d entries)", c.Name, c.Len())
}

// NormalizeAccount upper-cases and trims an account identifier. Account
// matching is case-insensitive throughout; validity against the set of
// known accounts is checked by the publisher at dispatch time, not here.
func NormalizeAccount(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
