package rules

import "strings"

// Entity is a point-in-time snapshot of a warehouse object (order, pick,
// inventory record, shipment) as a nested map. The engine never mutates it.
type Entity map[string]any

// Resolve extracts the value at a dotted field path ("items.count",
// "customer.tier"). Missing intermediate segments yield Missing rather
// than an error. Arrays are not auto-flattened; a path segment into a
// non-map resolves to Missing.
func Resolve(entity Entity, path string) Value {
	if entity == nil || path == "" {
		return Missing
	}

	var cur any = map[string]any(entity)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if e, isEntity := cur.(Entity); isEntity {
				m = map[string]any(e)
			} else {
				return Missing
			}
		}
		cur, ok = m[seg]
		if !ok {
			return Missing
		}
	}
	return FromAny(cur)
}

// ID returns the entity's identifier for audit records, or "" when the
// snapshot carries none.
func (e Entity) ID() string {
	v := Resolve(e, "id")
	if v.IsMissing() {
		return ""
	}
	return v.AsString()
}
