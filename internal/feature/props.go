package feature

import (
	"sort"
	"strconv"
)

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Row renders the feature's attributes in field order for tabular display,
// followed by a short geometry description.
func (c *Collection) Row(f *Feature) []string {
	row := make([]string, 0, len(c.Fields)+1)
	for _, name := range c.Fields {
		row = append(row, formatValue(f.Properties[name]))
	}
	return append(row, Describe(f.Geometry))
}

// Header returns the column names matching Row.
func (c *Collection) Header() []string {
	return append(append([]string(nil), c.Fields...), "geometry")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return "?"
	}
}
