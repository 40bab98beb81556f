package driver

import "sort"

// Named is something with a stable diagnostic name.
type Named interface {
	Name() string
}

// A Privilege names a capability an actor may hold.
type Privilege string

// PrivilegeWizard is the administrative privilege gating wizard commands.
const PrivilegeWizard Privilege = "wizard"

// A PrivilegeSet is the set of privileges an actor holds.
type PrivilegeSet map[Privilege]struct{}

// NewPrivilegeSet creates a set holding the given privileges.
func NewPrivilegeSet(privs ...Privilege) PrivilegeSet {
	s := make(PrivilegeSet, len(privs))
	for _, p := range privs {
		s[p] = struct{}{}
	}

	return s
}

// Has reports whether the set holds p.
func (s PrivilegeSet) Has(p Privilege) bool {
	_, ok := s[p]
	return ok
}

// Add puts p into the set.
func (s PrivilegeSet) Add(p Privilege) {
	s[p] = struct{}{}
}

// Strings returns the privileges in sorted order.
func (s PrivilegeSet) Strings() []string {
	names := make([]string, 0, len(s))
	for p := range s {
		names = append(names, string(p))
	}
	sort.Strings(names)

	return names
}

// An Actor is a participant in the world that can own scheduled work and
// issue commands. World and content semantics live outside the core; the
// driver only needs identity and privileges.
type Actor interface {
	Named

	Privileges() PrivilegeSet
}
