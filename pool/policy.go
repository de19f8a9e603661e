// Package pool implements the named bounded worker pool registry: two
// admission policies (WaitPool, PriorityPool), a non-blocking can_admit
// probe, and spawn/force_spawn entry points returning a Future. Grounded
// on spec.md §4.2 and the teacher's xact/xs pool-sizing convention
// (config-driven, atomic counters, nlog on state transitions).
/*
 * Copyright (c) 2024, zexec authors.
 */
package pool

import (
	"strconv"
	"strings"

	"github.com/aistore/zexec/cmn"
)

// PolicyKind is the enumerated grammar `spec.md` §4.2 asks to be parsed out
// of the free-form `name = Policy(size, queue_depth)` config expression.
type PolicyKind int

const (
	KindWaitPool PolicyKind = iota
	KindPriorityPool
)

func (k PolicyKind) String() string {
	if k == KindPriorityPool {
		return "PriorityPool"
	}
	return "WaitPool"
}

// Policy is one parsed `name = Policy(size, queue_depth)` clause.
type Policy struct {
	Name       string
	Kind       PolicyKind
	Size       int
	QueueDepth int
}

// ParsePolicies parses the semicolon-separated registry grammar into an
// ordered list of Policy values. A `default` pool is required; its absence
// is a configuration error per spec.md §4.2.
func ParsePolicies(grammar string) ([]Policy, error) {
	var out []Policy
	haveDefault := false
	for _, clause := range splitNonEmpty(grammar, ";") {
		p, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		if p.Name == "default" {
			haveDefault = true
		}
		out = append(out, p)
	}
	if !haveDefault {
		return nil, cmn.NewReqError(cmn.ErrInternal, "pool: missing required \"default\" pool in configuration")
	}
	return out, nil
}

func parseClause(clause string) (Policy, error) {
	eq := strings.IndexByte(clause, '=')
	if eq < 0 {
		return Policy{}, cmn.NewReqError(cmn.ErrInternal, "pool: malformed clause "+strconv.Quote(clause))
	}
	name := strings.TrimSpace(clause[:eq])
	expr := strings.TrimSpace(clause[eq+1:])

	open := strings.IndexByte(expr, '(')
	close := strings.LastIndexByte(expr, ')')
	if open < 0 || close < 0 || close < open {
		return Policy{}, cmn.NewReqError(cmn.ErrInternal, "pool: malformed policy expression "+strconv.Quote(expr))
	}
	kindName := strings.TrimSpace(expr[:open])
	args := splitNonEmpty(expr[open+1:close], ",")
	if len(args) != 2 {
		return Policy{}, cmn.NewReqError(cmn.ErrInternal, "pool: policy "+kindName+" wants exactly (size, queue_depth)")
	}
	size, err1 := strconv.Atoi(strings.TrimSpace(args[0]))
	depth, err2 := strconv.Atoi(strings.TrimSpace(args[1]))
	if err1 != nil || err2 != nil || size <= 0 || depth < 0 {
		return Policy{}, cmn.NewReqError(cmn.ErrInternal, "pool: invalid (size, queue_depth) in "+strconv.Quote(expr))
	}

	var kind PolicyKind
	switch kindName {
	case "WaitPool":
		kind = KindWaitPool
	case "PriorityPool":
		kind = KindPriorityPool
	default:
		return Policy{}, cmn.NewReqError(cmn.ErrInternal, "pool: unknown policy kind "+strconv.Quote(kindName))
	}

	return Policy{Name: name, Kind: kind, Size: size, QueueDepth: depth}, nil
}

func splitNonEmpty(s, sep string) []string {
	raw := strings.Split(s, sep)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}
