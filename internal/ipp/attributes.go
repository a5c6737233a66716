package ipp

// Attributes is an ordered name to value mapping. Names keep the order of
// their first appearance; setting an existing name replaces its value in
// place, so the last occurrence on the wire wins.
type Attributes struct {
	names  []string
	values map[string]Value
}

// NewAttributes creates an empty mapping.
func NewAttributes() Attributes {
	return Attributes{values: make(map[string]Value)}
}

// Set inserts or overwrites name.
func (a *Attributes) Set(name string, v Value) {
	if a.values == nil {
		a.values = make(map[string]Value)
	}
	if _, ok := a.values[name]; !ok {
		a.names = append(a.names, name)
	}
	a.values[name] = v
}

// Get returns the value for name.
func (a Attributes) Get(name string) (Value, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Names returns attribute names in order.
func (a Attributes) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Len returns the number of distinct names.
func (a Attributes) Len() int { return len(a.names) }
