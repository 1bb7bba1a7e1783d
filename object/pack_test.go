package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Count int
	Name  string
}

func (c *counter) Fail() (any, error) { return nil, nil }

type failingCounter struct{}

func (f *failingCounter) BridgeMethods() []string    { return nil }
func (f *failingCounter) BridgeProperties() []string { return []string{"Broken"} }
func (f *failingCounter) BridgeGet(name string) (any, error) {
	return nil, &getterError{name: name}
}

func TestPackObjectSnapshotsMethodsAndProperties(t *testing.T) {
	obj := &counter{Count: 3, Name: "c"}
	packed := PackObject(nil, nil, nil, obj)
	assert.Contains(t, packed.Methods, "Fail")
	require.Contains(t, packed.Properties, "Count")
	require.Contains(t, packed.Properties, "Name")
	assert.Equal(t, 3, packed.Properties["Count"].Raw)
}

func TestPackObjectCapturesPropertyGetterError(t *testing.T) {
	packed := PackObject(nil, nil, nil, &failingCounter{})
	entry, ok := packed.Properties["Broken"]
	require.True(t, ok)
	assert.True(t, entry.Throw)
}

func TestDiffObjectReportsOnlyChangedProperties(t *testing.T) {
	obj := &counter{Count: 1, Name: "same"}
	cache := NewValueCache(Properties(obj))

	changed := DiffObject(nil, nil, nil, obj, cache)
	assert.Len(t, changed, 2, "first diff reports every property dirty")

	changed = DiffObject(nil, nil, nil, obj, cache)
	assert.Empty(t, changed, "nothing mutated since last diff")

	obj.Count = 2
	changed = DiffObject(nil, nil, nil, obj, cache)
	require.Contains(t, changed, "Count")
	assert.NotContains(t, changed, "Name")
}
