package endpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEndpoint(name string, kind Kind) *Endpoint {
	return &Endpoint{
		ID:      string(kind) + ":" + name,
		Kind:    kind,
		Name:    name,
		Enabled: true,
		Source:  Source{ResolvedCode: "SELECT 1", Language: LanguageSQL},
	}
}

func TestRegistrySwap(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Current().Endpoints)

	first := NewSnapshot([]*Endpoint{testEndpoint("a", KindTool)})
	reg.Swap(first)
	assert.NotNil(t, reg.Current().Get("tool:a"))

	// The held reference keeps observing the old state after a swap.
	held := reg.Current()
	second := NewSnapshot([]*Endpoint{testEndpoint("b", KindTool)})
	old := reg.Swap(second)

	assert.Same(t, first, old)
	assert.NotNil(t, held.Get("tool:a"))
	assert.Nil(t, held.Get("tool:b"))
	assert.NotNil(t, reg.Current().Get("tool:b"))
	assert.Nil(t, reg.Current().Get("tool:a"))
}

func TestSnapshotCounts(t *testing.T) {
	snap := NewSnapshot([]*Endpoint{
		testEndpoint("t1", KindTool),
		testEndpoint("t2", KindTool),
		testEndpoint("r1", KindResource),
		testEndpoint("p1", KindPrompt),
	})
	tools, resources, prompts := snap.Counts()
	assert.Equal(t, 2, tools)
	assert.Equal(t, 1, resources)
	assert.Equal(t, 1, prompts)
}

func TestSchemaHashStability(t *testing.T) {
	a := []*Endpoint{testEndpoint("x", KindTool), testEndpoint("y", KindTool)}
	b := []*Endpoint{testEndpoint("y", KindTool), testEndpoint("x", KindTool)}

	require.Equal(t, NewSnapshot(a).SchemaHash, NewSnapshot(b).SchemaHash)

	changed := testEndpoint("x", KindTool)
	changed.Source.ResolvedCode = "SELECT 2"
	assert.NotEqual(t,
		NewSnapshot(a).SchemaHash,
		NewSnapshot([]*Endpoint{changed, testEndpoint("y", KindTool)}).SchemaHash)
}
