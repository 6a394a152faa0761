package rbac

import "strings"

// Policy maps a role to the permission patterns it is granted. A pattern is
// an exact permission, "*", or a prefix ending in "*" such as "attempt:view-*".
type Policy map[string][]string

type Checker struct {
	policy Policy
}

// NewChecker returns a checker for p, or for DefaultPolicy when p is nil.
func NewChecker(p Policy) *Checker {
	if p == nil {
		p = DefaultPolicy
	}
	return &Checker{policy: p}
}

func (c *Checker) Has(role, perm string) bool {
	for _, pattern := range c.policy[role] {
		if grants(pattern, perm) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func grants(pattern, perm string) bool {
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	if !wildcard {
		return pattern == perm
	}
	return strings.HasPrefix(perm, prefix)
}
