package ehr

// Resource is one vendor FHIR resource as decoded from JSON. Nested
// objects are map[string]any and arrays are []any. The helpers below never
// panic on missing or mistyped members; they return zero values instead.
type Resource map[string]any

// ID returns the top-level "id", or "" when absent or not a string.
func (r Resource) ID() string {
	return str(r["id"])
}

func (r Resource) ResourceType() string {
	return str(r["resourceType"])
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func obj(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

// firstObj returns the first element of an array member when it is an object.
func firstObj(v any) map[string]any {
	l := list(v)
	if len(l) == 0 {
		return nil
	}
	return obj(l[0])
}

// findObj returns the first object element of v accepted by match.
func findObj(v any, match func(map[string]any) bool) map[string]any {
	for _, item := range list(v) {
		if m := obj(item); m != nil && match(m) {
			return m
		}
	}
	return nil
}

// firstString returns the first element of an array member when it is a string.
func firstString(v any) string {
	l := list(v)
	if len(l) == 0 {
		return ""
	}
	return str(l[0])
}
