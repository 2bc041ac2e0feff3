package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: one inventory update
setup:
  platform:
    inventory_items: {inv-1: ABC}
events:
  - topic: inventory_levels/update
    payload: {inventory_item_id: inv-1, available: 2}
assertions:
  - {type: pool, sku: ABC, available: 2}
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Events, 1)
	assert.Equal(t, "inventory_levels/update", string(s.Events[0].Topic))
	assert.Equal(t, "ABC", s.Setup.Platform.InventoryItems["inv-1"])
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, 2, *s.Assertions[0].Available)
	assert.Nil(t, s.Assertions[0].Total)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: y\nevnts: []\n",
			wantErr: "field evnts not found",
		},
		{
			name:    "missing name",
			yaml:    "description: y\nevents: [{topic: orders/create, payload: {order_id: '1'}}]\nassertions: [{type: pool_absent, sku: A}]\n",
			wantErr: "name is required",
		},
		{
			name:    "no events",
			yaml:    "name: x\ndescription: y\nassertions: [{type: pool_absent, sku: A}]\n",
			wantErr: "events list is required",
		},
		{
			name:    "event without payload",
			yaml:    "name: x\ndescription: y\nevents: [{topic: orders/create}]\nassertions: [{type: pool_absent, sku: A}]\n",
			wantErr: "payload is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: y\nevents: [{topic: orders/create, payload: {order_id: '1'}}]\nassertions: [{type: trace_count}]\n",
			wantErr: "unknown assertion type",
		},
		{
			name:    "pool without counts",
			yaml:    "name: x\ndescription: y\nevents: [{topic: orders/create, payload: {order_id: '1'}}]\nassertions: [{type: pool, sku: A}]\n",
			wantErr: "total or available is required",
		},
		{
			name:    "negative pool seed",
			yaml:    "name: x\ndescription: y\nsetup: {pools: [{sku: A, available: -1}]}\nevents: [{topic: orders/create, payload: {order_id: '1'}}]\nassertions: [{type: pool_absent, sku: A}]\n",
			wantErr: "counts must be non-negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, files)
}
