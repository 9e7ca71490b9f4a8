// Package account maintains the registry of feed accounts the bot can
// post as. Lookups are case-insensitive; names are canonicalized to
// upper-case once at startup and passed through unchanged afterwards.
package account

import (
	"fmt"
	"sort"
	"strings"
)

// Account holds the credentials for one feed account.
type Account struct {
	Name        string // canonical upper-case name, e.g. "LUNA"
	AccessToken string
}

// Registry is an immutable lookup table built once from configuration.
type Registry struct {
	byName      map[string]Account
	defaultName string
}

// NewRegistry builds a Registry from configured accounts. The default
// account is used for command replies and operator DMs; when defaultName
// is empty the first account is the default.
func NewRegistry(accounts []Account, defaultName string) (*Registry, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("account: at least one account is required")
	}
	r := &Registry{byName: make(map[string]Account, len(accounts))}
	for i, a := range accounts {
		name := canonical(a.Name)
		if name == "" {
			return nil, fmt.Errorf("account: accounts[%d] has no name", i)
		}
		if a.AccessToken == "" {
			return nil, fmt.Errorf("account: %s has no access token", name)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("account: duplicate account %s", name)
		}
		a.Name = name
		r.byName[name] = a
	}
	if defaultName == "" {
		defaultName = accounts[0].Name
	}
	def, ok := r.byName[canonical(defaultName)]
	if !ok {
		return nil, fmt.Errorf("account: default account %q is not configured", defaultName)
	}
	r.defaultName = def.Name
	return r, nil
}

// Normalize maps any spelling of a known account name to its canonical
// form. Returns ok=false for unknown accounts; callers decide whether
// that is an error (the publisher does, the script loader does not).
func (r *Registry) Normalize(name string) (string, bool) {
	a, ok := r.byName[canonical(name)]
	if !ok {
		return "", false
	}
	return a.Name, true
}

// Get returns the account for name, matched case-insensitively.
func (r *Registry) Get(name string) (Account, bool) {
	a, ok := r.byName[canonical(name)]
	return a, ok
}

// Default returns the default account.
func (r *Registry) Default() Account {
	return r.byName[r.defaultName]
}

// Names returns all canonical account names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
