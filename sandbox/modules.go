package sandbox

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Module name constants.
const (
	moduleNameMath        = "math"
	moduleNameRandom      = "random"
	moduleNameDatetime    = "datetime"
	moduleNameJSON        = "json"
	moduleNameRegexp      = "re"
	moduleNameStrings     = "strings"
	moduleNameCollections = "collections"
	moduleNameStats       = "stats"
	moduleNameMatrix      = "matrix"
	moduleNamePlot        = "plot"
)

// DefaultAllowedModules is the allowlist used when the configuration
// does not override it.
func DefaultAllowedModules() []string {
	return []string{
		moduleNameMath,
		moduleNameRandom,
		moduleNameDatetime,
		moduleNameJSON,
		moduleNameRegexp,
		moduleNameStrings,
		moduleNameCollections,
		moduleNameStats,
		moduleNameMatrix,
		moduleNamePlot,
	}
}

// moduleBuilder constructs a module object for one session.
type moduleBuilder func(s *session) any

// Gate replaces the script's module resolution. Any require() call is
// checked against the fixed allowlist; names outside it fail with
// ImportDeniedError and never reach any ambient resolution path.
type Gate struct {
	allowed  map[string]struct{}
	builders map[string]moduleBuilder
}

// NewGate builds a gate for the given allowlist. Allowed names without
// a known builder stay in the set; resolving them reports the module
// as unavailable rather than denied.
func NewGate(allowed []string) *Gate {
	g := &Gate{
		allowed:  make(map[string]struct{}, len(allowed)),
		builders: defaultModuleBuilders(),
	}
	for _, name := range allowed {
		g.allowed[name] = struct{}{}
	}
	return g
}

// Allowed reports whether a module name is on the allowlist.
func (g *Gate) Allowed(name string) bool {
	_, ok := g.allowed[name]
	return ok
}

// AllowedModules returns the allowlist, sorted.
func (g *Gate) AllowedModules() []string {
	out := make([]string, 0, len(g.allowed))
	for name := range g.allowed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the module object for name, building it at most once
// per session. Denied names record the denial on the session before
// failing so the error survives script-level catch blocks mangling it.
func (g *Gate) Resolve(name string, s *session) (any, error) {
	if !g.Allowed(name) {
		denied := &ImportDeniedError{Module: name}
		s.recordDenied(denied)
		return nil, denied
	}
	if mod, ok := s.modules[name]; ok {
		return mod, nil
	}
	build, ok := g.builders[name]
	if !ok {
		return nil, fmt.Errorf("module '%s' is not available in this build", name)
	}
	mod := build(s)
	s.modules[name] = mod
	return mod, nil
}

func defaultModuleBuilders() map[string]moduleBuilder {
	return map[string]moduleBuilder{
		moduleNameMath:        buildMathModule,
		moduleNameRandom:      buildRandomModule,
		moduleNameDatetime:    buildDatetimeModule,
		moduleNameJSON:        buildJSONModule,
		moduleNameRegexp:      buildRegexpModule,
		moduleNameStrings:     buildStringsModule,
		moduleNameCollections: buildCollectionsModule,
		moduleNameStats:       buildStatsModule,
		moduleNameMatrix:      buildMatrixModule,
		moduleNamePlot:        buildPlotModule,
	}
}

func buildMathModule(_ *session) any {
	return map[string]any{
		"pi":    math.Pi,
		"e":     math.E,
		"abs":   math.Abs,
		"sqrt":  math.Sqrt,
		"cbrt":  math.Cbrt,
		"pow":   math.Pow,
		"exp":   math.Exp,
		"log":   math.Log,
		"log2":  math.Log2,
		"log10": math.Log10,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"round": math.Round,
		"trunc": math.Trunc,
		"sin":   math.Sin,
		"cos":   math.Cos,
		"tan":   math.Tan,
		"asin":  math.Asin,
		"acos":  math.Acos,
		"atan":  math.Atan,
		"atan2": math.Atan2,
		"hypot": math.Hypot,
		"mod":   math.Mod,
		"max": func(xs ...float64) (float64, error) {
			if len(xs) == 0 {
				return 0, fmt.Errorf("math.max requires at least one argument")
			}
			m := xs[0]
			for _, x := range xs[1:] {
				m = math.Max(m, x)
			}
			return m, nil
		},
		"min": func(xs ...float64) (float64, error) {
			if len(xs) == 0 {
				return 0, fmt.Errorf("math.min requires at least one argument")
			}
			m := xs[0]
			for _, x := range xs[1:] {
				m = math.Min(m, x)
			}
			return m, nil
		},
		"sum": func(xs []float64) float64 {
			var total float64
			for _, x := range xs {
				total += x
			}
			return total
		},
	}
}

func buildRandomModule(s *session) any {
	rng := s.rng
	return map[string]any{
		"random": func() float64 { return rng.Float64() },
		"intn": func(n int64) (int64, error) {
			if n <= 0 {
				return 0, fmt.Errorf("random.intn requires n > 0, got %d", n)
			}
			return rng.Int63n(n), nil
		},
		"uniform": func(lo, hi float64) float64 {
			return lo + rng.Float64()*(hi-lo)
		},
		"choice": func(xs []any) (any, error) {
			if len(xs) == 0 {
				return nil, fmt.Errorf("random.choice on empty sequence")
			}
			return xs[rng.Intn(len(xs))], nil
		},
	}
}

func buildDatetimeModule(s *session) any {
	return map[string]any{
		"now":  func() string { return s.clock.Now().Format(time.RFC3339) },
		"unix": func() int64 { return s.clock.Now().Unix() },
		"parse": func(value string) (int64, error) {
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return 0, fmt.Errorf("datetime.parse: %w", err)
			}
			return t.Unix(), nil
		},
		"format": func(unix int64, layout string) string {
			return time.Unix(unix, 0).UTC().Format(layout)
		},
	}
}

func buildJSONModule(_ *session) any {
	return map[string]any{
		"parse": func(text string) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(text), &v); err != nil {
				return nil, fmt.Errorf("json.parse: %w", err)
			}
			return v, nil
		},
		"stringify": func(v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("json.stringify: %w", err)
			}
			return string(b), nil
		},
	}
}

func buildRegexpModule(_ *session) any {
	return map[string]any{
		"test": func(pattern, text string) (bool, error) {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("re.test: %w", err)
			}
			return re.MatchString(text), nil
		},
		"find": func(pattern, text string) (string, error) {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("re.find: %w", err)
			}
			return re.FindString(text), nil
		},
		"findAll": func(pattern, text string) ([]string, error) {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("re.findAll: %w", err)
			}
			matches := re.FindAllString(text, -1)
			if matches == nil {
				matches = []string{}
			}
			return matches, nil
		},
		"groups": func(pattern, text string) ([]string, error) {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("re.groups: %w", err)
			}
			groups := re.FindStringSubmatch(text)
			if groups == nil {
				groups = []string{}
			}
			return groups, nil
		},
		"replace": func(pattern, text, replacement string) (string, error) {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("re.replace: %w", err)
			}
			return re.ReplaceAllString(text, replacement), nil
		},
	}
}

func buildStringsModule(_ *session) any {
	return map[string]any{
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"trim":       strings.TrimSpace,
		"contains":   strings.Contains,
		"startsWith": strings.HasPrefix,
		"endsWith":   strings.HasSuffix,
		"split":      strings.Split,
		"join":       strings.Join,
		"repeat": func(text string, count int) (string, error) {
			if count < 0 {
				return "", fmt.Errorf("strings.repeat count must not be negative")
			}
			return strings.Repeat(text, count), nil
		},
		"replace": func(text, old, new string) string {
			return strings.ReplaceAll(text, old, new)
		},
	}
}

func buildCollectionsModule(_ *session) any {
	return map[string]any{
		"counter": func(xs []any) map[string]int64 {
			counts := make(map[string]int64, len(xs))
			for _, x := range xs {
				counts[fmt.Sprintf("%v", x)]++
			}
			return counts
		},
		"unique": func(xs []any) []any {
			seen := make(map[string]struct{}, len(xs))
			out := []any{}
			for _, x := range xs {
				key := fmt.Sprintf("%v", x)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, x)
			}
			return out
		},
		"sorted": func(xs []float64) []float64 {
			out := append([]float64(nil), xs...)
			sort.Float64s(out)
			return out
		},
		"reversed": func(xs []any) []any {
			out := make([]any, len(xs))
			for i, x := range xs {
				out[len(xs)-1-i] = x
			}
			return out
		},
	}
}

func buildStatsModule(_ *session) any {
	requireSameLen := func(name string, xs, ys []float64) error {
		if len(xs) != len(ys) {
			return fmt.Errorf("%s: input lengths differ (%d vs %d)", name, len(xs), len(ys))
		}
		if len(xs) == 0 {
			return fmt.Errorf("%s: empty input", name)
		}
		return nil
	}
	return map[string]any{
		"mean": func(xs []float64) (float64, error) {
			if len(xs) == 0 {
				return 0, fmt.Errorf("stats.mean: empty input")
			}
			return stat.Mean(xs, nil), nil
		},
		"median": func(xs []float64) (float64, error) {
			if len(xs) == 0 {
				return 0, fmt.Errorf("stats.median: empty input")
			}
			sorted := append([]float64(nil), xs...)
			sort.Float64s(sorted)
			return stat.Quantile(0.5, stat.Empirical, sorted, nil), nil
		},
		"stdDev": func(xs []float64) (float64, error) {
			if len(xs) < 2 {
				return 0, fmt.Errorf("stats.stdDev: need at least two values")
			}
			return stat.StdDev(xs, nil), nil
		},
		"variance": func(xs []float64) (float64, error) {
			if len(xs) < 2 {
				return 0, fmt.Errorf("stats.variance: need at least two values")
			}
			return stat.Variance(xs, nil), nil
		},
		"correlation": func(xs, ys []float64) (float64, error) {
			if err := requireSameLen("stats.correlation", xs, ys); err != nil {
				return 0, err
			}
			return stat.Correlation(xs, ys, nil), nil
		},
		"linearRegression": func(xs, ys []float64) (map[string]float64, error) {
			if err := requireSameLen("stats.linearRegression", xs, ys); err != nil {
				return nil, err
			}
			alpha, beta := stat.LinearRegression(xs, ys, nil, false)
			return map[string]float64{"alpha": alpha, "beta": beta}, nil
		},
	}
}
