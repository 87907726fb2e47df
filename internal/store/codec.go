// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"encoding/json"

	"github.com/samber/oops"

	"github.com/holomush/permcore/internal/contexts"
	"github.com/holomush/permcore/internal/subject"
)

// subjectRecord is the stored JSON form of one subject's data.
type subjectRecord struct {
	Segments []segmentRecord `json:"segments"`
}

type segmentRecord struct {
	Contexts    []contextRecord   `json:"contexts,omitempty"`
	Permissions map[string]int    `json:"permissions,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
	Parents     []string          `json:"parents,omitempty"`
}

// contextRecord keeps tags as an explicit list rather than a map:
// duplicate keys are legal in a context set.
type contextRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// encodeData serializes a snapshot for storage, preserving segment
// order.
func encodeData(data *subject.Data) ([]byte, error) {
	rec := subjectRecord{}
	for _, seg := range data.Segments() {
		sr := segmentRecord{
			Permissions: seg.Permissions(),
			Options:     seg.Options(),
		}
		if len(sr.Permissions) == 0 {
			sr.Permissions = nil
		}
		if len(sr.Options) == 0 {
			sr.Options = nil
		}
		for _, v := range seg.Contexts().Values() {
			sr.Contexts = append(sr.Contexts, contextRecord{Key: v.Key, Value: v.Val})
		}
		for _, p := range seg.Parents() {
			sr.Parents = append(sr.Parents, p.String())
		}
		rec.Segments = append(rec.Segments, sr)
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return nil, oops.Code("ENCODE_FAILED").Wrapf(err, "marshal subject data")
	}
	return out, nil
}

// decodeData rebuilds a snapshot from its stored form.
func decodeData(raw []byte) (*subject.Data, error) {
	var rec subjectRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, oops.Code("DECODE_FAILED").Wrapf(err, "unmarshal subject data")
	}
	segments := make([]subject.Segment, 0, len(rec.Segments))
	for _, sr := range rec.Segments {
		values := make([]contexts.Value, 0, len(sr.Contexts))
		for _, c := range sr.Contexts {
			values = append(values, contexts.NewValue(c.Key, c.Value))
		}
		parents := make([]subject.Ref, 0, len(sr.Parents))
		for _, p := range sr.Parents {
			ref, err := subject.ParseRef(p)
			if err != nil {
				return nil, oops.Code("DECODE_FAILED").
					With("parent", p).
					Wrapf(err, "parse stored parent reference")
			}
			parents = append(parents, ref)
		}
		segments = append(segments, subject.NewSegment(
			contexts.NewSet(values...), sr.Permissions, sr.Options, parents))
	}
	return subject.NewData(segments...), nil
}
