// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subject

import (
	"context"
	"log/slog"

	"github.com/holomush/permcore/internal/contexts"
)

// DataSource supplies the resolver with subject data and type
// defaults. The engine implements it over its registered collections.
type DataSource interface {
	// DataFor returns both tiers for the subject. Unregistered subject
	// types yield a SUBJECT_TYPE_UNKNOWN error.
	DataFor(ctx context.Context, ref Ref) (persistent, transient *DataRef, err error)

	// DefaultFor returns the configured default subject for a type,
	// if one exists.
	DefaultFor(subjectType string) (Ref, bool)
}

// link is one entry of a resolved inheritance chain: a subject plus
// its two data tiers, transient consulted first.
type link struct {
	ref        Ref
	transient  *DataRef
	persistent *DataRef
}

// Resolver builds the ordered ancestor chain consulted during
// permission and option lookups.
type Resolver struct {
	source DataSource
}

// NewResolver creates a resolver over the given data source.
func NewResolver(source DataSource) *Resolver {
	return &Resolver{source: source}
}

// Chain returns [origin, parent₁, parent₂, …] for the active context
// set: a depth-first, left-to-right walk of the parent graph. A
// subject already in the chain is never revisited, which truncates
// cycles silently. A parentless subject that is not its type's default
// links to that default as the final fallback. Subjects whose type has
// no registered store are skipped with a warning.
func (r *Resolver) Chain(ctx context.Context, origin Ref, active contexts.Set) []link {
	visited := make(map[Ref]struct{})
	chain := make([]link, 0, 4)
	r.visit(ctx, origin, active, visited, &chain)
	return chain
}

func (r *Resolver) visit(ctx context.Context, ref Ref, active contexts.Set, visited map[Ref]struct{}, chain *[]link) {
	if _, seen := visited[ref]; seen {
		return
	}
	visited[ref] = struct{}{}

	persistent, transient, err := r.source.DataFor(ctx, ref)
	if err != nil {
		slog.WarnContext(ctx, "skipping unresolvable subject in inheritance chain",
			"subject", ref.String(),
			"error", err)
		return
	}
	*chain = append(*chain, link{ref: ref, transient: transient, persistent: persistent})

	parents := tierParents(transient, active)
	parents = append(parents, tierParents(persistent, active)...)
	for _, parent := range parents {
		r.visit(ctx, parent, active, visited, chain)
	}

	if len(parents) == 0 {
		if def, ok := r.source.DefaultFor(ref.Type); ok && def != ref {
			r.visit(ctx, def, active, visited, chain)
		}
	}
}

// tierParents collects the parents one tier declares for the active
// set, most specific segment first, preserving declaration order
// within a segment and dropping repeats.
func tierParents(tier *DataRef, active contexts.Set) []Ref {
	if tier == nil {
		return nil
	}
	var out []Ref
	seen := make(map[Ref]struct{})
	for _, seg := range tier.Get().matching(active) {
		for _, parent := range seg.parents {
			if _, dup := seen[parent]; dup {
				continue
			}
			seen[parent] = struct{}{}
			out = append(out, parent)
		}
	}
	return out
}
