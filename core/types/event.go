package types

import "sort"

// Event represents a typed event emitted by a committed transaction.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Keys returns the attribute names in sorted order.
func (e *Event) Keys() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attribute is a single event key/value pair.
type Attribute struct {
	Key   string
	Value string
}

// Pairs flattens the attributes into sorted key/value pairs, the form used
// for hashing and RLP encoding.
func (e *Event) Pairs() []Attribute {
	keys := e.Keys()
	out := make([]Attribute, 0, len(keys))
	for _, k := range keys {
		out = append(out, Attribute{Key: k, Value: e.Attributes[k]})
	}
	return out
}
