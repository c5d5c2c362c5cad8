// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Role names known to the default policy.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleOperateur  = "operateur"
	RoleAccountant = "accountant"
	RoleInvite     = "invite"
)

// RuleKind selects how a Rule matches an action.
type RuleKind int

const (
	// RuleExact matches one action.
	RuleExact RuleKind = iota
	// RulePrefix matches every action whose first segment equals Segment.
	RulePrefix
	// RuleSuffix matches every action whose last segment equals Segment.
	RuleSuffix
	// RuleAll matches every action.
	RuleAll
)

func (k RuleKind) String() string {
	switch k {
	case RuleExact:
		return "exact"
	case RulePrefix:
		return "prefix"
	case RuleSuffix:
		return "suffix"
	case RuleAll:
		return "all"
	default:
		return fmt.Sprintf("RuleKind(%d)", int(k))
	}
}

// ErrInvalidRule is returned by ParseRule for malformed patterns.
var ErrInvalidRule = errors.New("invalid permission rule")

// Rule is one compiled permission pattern.
type Rule struct {
	Kind    RuleKind
	Segment string
}

// ParseRule compiles "*", "domain.*", "*.verb" or an exact "domain.verb".
func ParseRule(pattern string) (Rule, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "*" {
		return Rule{Kind: RuleAll}, nil
	}
	segments := strings.Split(pattern, ".")
	if len(segments) < 2 {
		return Rule{}, fmt.Errorf("%w: %q needs at least two segments", ErrInvalidRule, pattern)
	}
	for i, seg := range segments {
		if seg == "" {
			return Rule{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidRule, pattern)
		}
		if seg != "*" && strings.Contains(seg, "*") {
			return Rule{}, fmt.Errorf("%w: %q has a partial wildcard", ErrInvalidRule, pattern)
		}
		if seg == "*" && i != 0 && i != len(segments)-1 {
			return Rule{}, fmt.Errorf("%w: %q has an inner wildcard", ErrInvalidRule, pattern)
		}
	}

	first, last := segments[0], segments[len(segments)-1]
	switch {
	case first == "*" && last == "*":
		return Rule{}, fmt.Errorf("%w: %q is ambiguous, use \"*\"", ErrInvalidRule, pattern)
	case last == "*":
		if len(segments) != 2 {
			return Rule{}, fmt.Errorf("%w: %q prefix must be a single segment", ErrInvalidRule, pattern)
		}
		return Rule{Kind: RulePrefix, Segment: first}, nil
	case first == "*":
		if len(segments) != 2 {
			return Rule{}, fmt.Errorf("%w: %q suffix must be a single segment", ErrInvalidRule, pattern)
		}
		return Rule{Kind: RuleSuffix, Segment: last}, nil
	default:
		return Rule{Kind: RuleExact, Segment: pattern}, nil
	}
}

// MustParseRule is ParseRule for static tables.
func MustParseRule(pattern string) Rule {
	r, err := ParseRule(pattern)
	if err != nil {
		panic(err)
	}
	return r
}

// Matches reports whether action falls under the rule.
func (r Rule) Matches(action string) bool {
	if action == "" {
		return false
	}
	switch r.Kind {
	case RuleAll:
		return true
	case RuleExact:
		return action == r.Segment
	case RulePrefix:
		first, rest, ok := strings.Cut(action, ".")
		return ok && rest != "" && first == r.Segment
	case RuleSuffix:
		i := strings.LastIndexByte(action, '.')
		return i > 0 && action[i+1:] == r.Segment
	default:
		return false
	}
}

func (r Rule) String() string {
	switch r.Kind {
	case RuleAll:
		return "*"
	case RulePrefix:
		return r.Segment + ".*"
	case RuleSuffix:
		return "*." + r.Segment
	default:
		return r.Segment
	}
}

// Policy maps a role to its ordered rules. It is read-only after construction.
type Policy struct {
	rules map[string][]Rule
}

// NewPolicy compiles a role -> patterns table.
func NewPolicy(table map[string][]string) (*Policy, error) {
	p := &Policy{rules: make(map[string][]Rule, len(table))}
	for role, patterns := range table {
		compiled := make([]Rule, 0, len(patterns))
		for _, pat := range patterns {
			r, err := ParseRule(pat)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			compiled = append(compiled, r)
		}
		p.rules[role] = compiled
	}
	return p, nil
}

// DefaultTable is the role table used when none is configured.
func DefaultTable() map[string][]string {
	return map[string][]string{
		RoleAdmin:      {"*"},
		RoleManager:    {"client.*", "goods.*", "container.*", "payment.view"},
		RoleOperateur:  {"client.*", "goods.*", "container.*"},
		RoleAccountant: {"payment.*", "client.view"},
		RoleInvite:     {"*.view"},
	}
}

// DefaultPolicy compiles DefaultTable.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultTable())
	if err != nil {
		panic(err)
	}
	return p
}

// Allowed reports whether role may perform action. Unknown roles are denied.
func (p *Policy) Allowed(role, action string) bool {
	if role == RoleAdmin {
		return true
	}
	for _, r := range p.rules[role] {
		if r.Matches(action) {
			return true
		}
	}
	return false
}

// Roles lists the configured roles in sorted order.
func (p *Policy) Roles() []string {
	roles := make([]string, 0, len(p.rules))
	for role := range p.rules {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
