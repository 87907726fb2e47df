// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("user:alice")
	require.NoError(t, err)
	assert.Equal(t, NewRef(TypeUser, "alice"), ref)
	assert.Equal(t, "user:alice", ref.String())
}

func TestParseRef_NameMayContainColons(t *testing.T) {
	ref, err := ParseRef("group:ns:admin")
	require.NoError(t, err)
	assert.Equal(t, "group", ref.Type)
	assert.Equal(t, "ns:admin", ref.Name)
}

func TestParseRef_Invalid(t *testing.T) {
	for _, in := range []string{"", "alice", ":alice", "user:"} {
		_, err := ParseRef(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestRef_IsZero(t *testing.T) {
	assert.True(t, Ref{}.IsZero())
	assert.False(t, NewRef(TypeUser, "alice").IsZero())
}
