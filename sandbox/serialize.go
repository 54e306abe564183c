package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// maxSerializeDepth bounds recursion into nested sequences/mappings.
// Anything deeper (including cyclic structures) degrades to a string.
const maxSerializeDepth = 16

// Mapper is implemented by host objects that know how to render
// themselves as a structured mapping. The serializer prefers it over
// stringification.
type Mapper interface {
	ToMap() map[string]any
}

// Serializer converts the post-execution namespace delta into
// JSON-safe values. Conversion is a closed variant dispatch: primitive,
// sequence, mapping, matrix-like, Mapper, opaque fallback. It never
// fails; the worst case is a stringified value recorded as a fallback.
type Serializer struct {
	baseline map[string]struct{}
}

// NewSerializer builds a serializer that excludes the given baseline
// names (the installed capability set) from the reported variables.
func NewSerializer(baseline map[string]struct{}) *Serializer {
	return &Serializer{baseline: baseline}
}

// Variables extracts every newly introduced global from the VM,
// converted per the dispatch order. The second return lists variables
// that hit the stringification fallback.
func (sz *Serializer) Variables(vm *goja.Runtime) (map[string]any, []string) {
	global := vm.GlobalObject()
	names := global.Keys()
	sort.Strings(names)

	vars := make(map[string]any, len(names))
	var fallbacks []string
	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := sz.baseline[name]; ok {
			continue
		}
		v := global.Get(name)
		if v == nil || goja.IsUndefined(v) {
			continue
		}
		converted, fellBack := sz.Convert(v.Export(), 0)
		vars[name] = converted
		if fellBack {
			fallbacks = append(fallbacks, name)
		}
	}
	return vars, fallbacks
}

// Convert maps a single exported value to a JSON-safe representation.
// The boolean reports whether the opaque fallback was taken anywhere
// in the value.
func (sz *Serializer) Convert(v any, depth int) (any, bool) {
	if depth > maxSerializeDepth {
		return fmt.Sprintf("%v", v), true
	}
	switch val := v.(type) {
	case nil:
		return nil, false
	case bool, string, int, int32, int64:
		return val, false
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Sprintf("%v", val), true
		}
		return val, false
	case float32:
		return sz.Convert(float64(val), depth)
	case []any:
		out := make([]any, len(val))
		fellBack := false
		for i, item := range val {
			conv, fb := sz.Convert(item, depth+1)
			out[i] = conv
			fellBack = fellBack || fb
		}
		return out, fellBack
	case []float64:
		return append([]float64(nil), val...), false
	case []int64:
		return append([]int64(nil), val...), false
	case []string:
		return append([]string(nil), val...), false
	case [][]float64:
		out := make([][]float64, len(val))
		for i, row := range val {
			out[i] = append([]float64(nil), row...)
		}
		return out, false
	case map[string]any:
		out := make(map[string]any, len(val))
		fellBack := false
		for k, item := range val {
			conv, fb := sz.Convert(item, depth+1)
			out[k] = conv
			fellBack = fellBack || fb
		}
		return out, fellBack
	case map[string]float64:
		out := make(map[string]any, len(val))
		fellBack := false
		for k, item := range val {
			conv, fb := sz.Convert(item, depth+1)
			out[k] = conv
			fellBack = fellBack || fb
		}
		return out, fellBack
	case map[string]int64:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out, false
	case *Matrix:
		return val.ToList(), false
	case Mapper:
		return sz.Convert(val.ToMap(), depth)
	case time.Time:
		return val.Format(time.RFC3339), false
	default:
		return fmt.Sprintf("%v", val), true
	}
}
