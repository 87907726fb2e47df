// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package seed imports initial subject data from YAML files, so a
// fresh deployment starts with its groups and defaults in place.
package seed

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/permcore/internal/contexts"
	"github.com/holomush/permcore/internal/engine"
	"github.com/holomush/permcore/internal/subject"
)

// supportedVersions constrains the seed file format version.
var supportedVersions = mustConstraint("^1.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// File is a parsed seed file.
type File struct {
	// Version is the seed format version, semver. Major version 1 is
	// supported.
	Version  string    `yaml:"version" json:"version" jsonschema:"required"`
	Subjects []Subject `yaml:"subjects" json:"subjects" jsonschema:"required"`
}

// Subject declares one subject's seeded data.
type Subject struct {
	Type     string    `yaml:"type" json:"type" jsonschema:"required"`
	Name     string    `yaml:"name" json:"name" jsonschema:"required"`
	Segments []Segment `yaml:"segments" json:"segments"`
}

// Segment declares entries under one context set.
type Segment struct {
	Contexts    []ContextValue    `yaml:"contexts,omitempty" json:"contexts,omitempty"`
	Permissions map[string]int    `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	Options     map[string]string `yaml:"options,omitempty" json:"options,omitempty"`

	// Parents are "type:name" references.
	Parents []string `yaml:"parents,omitempty" json:"parents,omitempty"`
}

// ContextValue is one context tag.
type ContextValue struct {
	Key   string `yaml:"key" json:"key" jsonschema:"required"`
	Value string `yaml:"value" json:"value" jsonschema:"required"`
}

// Parse validates raw YAML against the seed schema and decodes it.
func Parse(data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, oops.Code("SEED_INVALID").Errorf("seed data is empty")
	}
	if err := ValidateSchema(data); err != nil {
		return nil, oops.Code("SEED_INVALID").Wrapf(err, "seed schema validation")
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code("SEED_INVALID").Wrapf(err, "decode seed YAML")
	}

	version, err := semver.NewVersion(f.Version)
	if err != nil {
		return nil, oops.
			Code("SEED_INVALID").
			With("version", f.Version).
			Wrapf(err, "parse seed version")
	}
	if !supportedVersions.Check(version) {
		return nil, oops.
			Code("SEED_UNSUPPORTED_VERSION").
			With("version", f.Version).
			Errorf("seed version %s is not supported (need %s)", f.Version, supportedVersions)
	}

	for _, s := range f.Subjects {
		for _, seg := range s.Segments {
			for _, p := range seg.Parents {
				if _, err := subject.ParseRef(p); err != nil {
					return nil, oops.
						Code("SEED_INVALID").
						With("subject", s.Type+":"+s.Name).
						With("parent", p).
						Wrapf(err, "parse seed parent reference")
				}
			}
		}
	}
	return &f, nil
}

// Apply writes the seed file's subjects through the engine. Existing
// entries for the same keys are overwritten; entries the seed does not
// mention are left alone, so re-applying a seed is idempotent.
func Apply(ctx context.Context, eng *engine.Engine, f *File) error {
	for _, s := range f.Subjects {
		ref := subject.NewRef(s.Type, s.Name)
		segments := s.Segments
		_, err := eng.UpdateData(ctx, ref, func(d *subject.Data) *subject.Data {
			for _, seg := range segments {
				set := contextSet(seg.Contexts)
				for key, value := range seg.Permissions {
					d = d.WithPermission(set, key, value)
				}
				for key, value := range seg.Options {
					d = d.WithOption(set, key, value)
				}
				for _, p := range seg.Parents {
					parent, _ := subject.ParseRef(p)
					d = d.WithAddedParent(set, parent)
				}
			}
			return d
		})
		if err != nil {
			return oops.
				With("subject", ref.String()).
				Wrapf(err, "apply seed subject")
		}
	}
	return nil
}

func contextSet(values []ContextValue) contexts.Set {
	out := make([]contexts.Value, 0, len(values))
	for _, v := range values {
		out = append(out, contexts.NewValue(v.Key, v.Value))
	}
	return contexts.NewSet(out...)
}
