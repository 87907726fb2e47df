// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package subject implements the permission resolution core: per-subject
// two-tier data snapshots, the inheritance resolver, and the calculated
// subject that evaluates permissions and options under active contexts.
package subject

import (
	"strings"

	"github.com/samber/oops"
)

// Well-known subject types.
const (
	TypeUser  = "user"
	TypeGroup = "group"
)

// Ref uniquely identifies a subject as a (type, name) pair,
// e.g. ("user", "01ABC") or ("group", "admin").
type Ref struct {
	Type string
	Name string
}

// NewRef creates a subject reference.
func NewRef(subjectType, name string) Ref {
	return Ref{Type: subjectType, Name: name}
}

// ParseRef parses a "type:name" reference. Both parts must be
// non-empty; names may themselves contain colons.
func ParseRef(s string) (Ref, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Ref{}, oops.
			Code("INVALID_SUBJECT_REF").
			With("ref", s).
			Errorf("subject reference must be in 'type:name' form with non-empty type and name")
	}
	return Ref{Type: parts[0], Name: parts[1]}, nil
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.Name == ""
}

func (r Ref) String() string {
	return r.Type + ":" + r.Name
}
