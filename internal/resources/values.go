package resources

import (
	"strconv"
)

// Values holds the validated text of each field. Accessors return zero
// values for empty or unparsable text; Validate has rejected those already.
type Values map[string]string

func (v Values) String(name string) string {
	return v[name]
}

func (v Values) Int(name string) int {
	n, _ := strconv.Atoi(v[name])
	return n
}

func (v Values) Float(name string) float64 {
	f, _ := strconv.ParseFloat(v[name], 64)
	return f
}

func (v Values) Uint(name string) uint {
	n, _ := strconv.ParseUint(v[name], 10, 64)
	return uint(n)
}

// UintPtr returns nil for an empty value, for nullable references.
func (v Values) UintPtr(name string) *uint {
	if v[name] == "" {
		return nil
	}
	n := v.Uint(name)
	return &n
}
