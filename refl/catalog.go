package refl

import (
	"fmt"
	"sort"
)

// Catalog maps type names to descriptors so serialized data can refer to
// reflected types by name
type Catalog struct {
	types map[string]*Type
}

// NewCatalog creates a catalog holding the given types
func NewCatalog(types ...*Type) *Catalog {
	c := &Catalog{types: make(map[string]*Type)}
	for _, t := range types {
		c.Add(t)
	}
	return c
}

// Add registers a type under its name. Adding a different type under a name
// already taken panics.
func (c *Catalog) Add(t *Type) {
	if t == nil {
		panic("refl: cannot add nil type to catalog")
	}
	if existing, ok := c.types[t.name]; ok && existing != t {
		panic(fmt.Sprintf("refl: catalog already holds a different type named %q", t.name))
	}
	c.types[t.name] = t
}

// Lookup finds a type by name
func (c *Catalog) Lookup(name string) (*Type, bool) {
	t, ok := c.types[name]
	return t, ok
}

// Names returns the sorted names of every type in the catalog
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
