package objectstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/devicehost/objectstore"
)

type namedThing struct{ name string }

func (n namedThing) Name() string { return n.name }

func TestObjectSetInsertGetDelete(t *testing.T) {
	var set objectstore.ObjectSet[namedThing]
	set.Insert(namedThing{name: "a"})
	set.Insert(namedThing{name: "b"})

	require.Equal(t, 2, set.Len())

	v, ok := set.Get("a")
	require.True(t, ok)
	require.Equal(t, "a", v.name)

	require.True(t, set.Contains(namedThing{name: "b"}))
	require.False(t, set.Contains(namedThing{name: "c"}))

	set.Delete("a")
	require.Equal(t, 1, set.Len())
	_, ok = set.Get("a")
	require.False(t, ok)
}

func TestObjectSetAllIterates(t *testing.T) {
	var set objectstore.ObjectSet[namedThing]
	set.Insert(namedThing{name: "x"})
	set.Insert(namedThing{name: "y"})

	seen := map[string]bool{}
	for v := range set.All() {
		seen[v.name] = true
	}
	require.Equal(t, map[string]bool{"x": true, "y": true}, seen)
}
