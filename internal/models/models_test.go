package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUnique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestFieldMap(t *testing.T) {
	r := &Record{Fields: json.RawMessage(`{"name":"Widget","selling_price":9.99}`)}

	m, err := r.FieldMap()
	require.NoError(t, err)
	assert.Equal(t, "Widget", m["name"])
	assert.Equal(t, 9.99, m["selling_price"])
}

func TestFieldMapEmptyFields(t *testing.T) {
	r := &Record{}

	m, err := r.FieldMap()
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestFieldMapMalformed(t *testing.T) {
	r := &Record{Fields: json.RawMessage(`{not json`)}

	_, err := r.FieldMap()
	assert.Error(t, err)
}

func TestScopeGrantAllows(t *testing.T) {
	grant := &ScopeGrant{Permissions: []string{"write:product", "read:queue"}}

	assert.True(t, grant.Allows("write:product"))
	assert.False(t, grant.Allows("write:invoice"))
}

func TestScopeGrantWildcard(t *testing.T) {
	grant := &ScopeGrant{Permissions: []string{"*"}}
	assert.True(t, grant.Allows("write:anything"))
}

func TestScopeGrantNil(t *testing.T) {
	var grant *ScopeGrant
	assert.False(t, grant.Allows("write:product"))
}

func TestValidEntityType(t *testing.T) {
	for _, entityType := range EntityTypes {
		assert.True(t, ValidEntityType(entityType))
	}
	assert.False(t, ValidEntityType("warehouse"))
	assert.False(t, ValidEntityType(""))
}

func TestValidOperation(t *testing.T) {
	assert.True(t, ValidOperation(OpCreate))
	assert.True(t, ValidOperation(OpUpdate))
	assert.True(t, ValidOperation(OpDelete))
	assert.False(t, ValidOperation("upsert"))
	assert.False(t, ValidOperation(""))
}
