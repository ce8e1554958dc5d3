package strategies

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// configReader pulls typed values out of the opaque strategy config map and
// remembers every problem so they can be reported together.
type configReader struct {
	values map[string]interface{}
	seen   map[string]bool
	errs   []string
}

func newConfigReader(values map[string]interface{}) *configReader {
	return &configReader{values: values, seen: make(map[string]bool)}
}

func (r *configReader) float(key string, def float64) float64 {
	r.seen[key] = true
	raw, ok := r.values[key]
	if !ok || raw == nil {
		return def
	}
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}
	r.errs = append(r.errs, fmt.Sprintf("%s: %v is not a number", key, raw))
	return def
}

func (r *configReader) int(key string, def int) int {
	f := r.float(key, float64(def))
	if f != math.Trunc(f) {
		r.errs = append(r.errs, fmt.Sprintf("%s: %v is not an integer", key, f))
		return def
	}
	return int(f)
}

func (r *configReader) check(ok bool, format string, args ...interface{}) {
	if !ok {
		r.errs = append(r.errs, fmt.Sprintf(format, args...))
	}
}

func (r *configReader) finish() error {
	var unknown []string
	for key := range r.values {
		if !r.seen[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		r.errs = append(r.errs, fmt.Sprintf("%s: unknown parameter", key))
	}
	if len(r.errs) == 0 {
		return nil
	}
	return errors.New("invalid config: " + strings.Join(r.errs, "; "))
}
