// Package rules resolves guild-scoped tunable constants. The rule store
// itself is an external collaborator; this package only defines the lookup
// contract, typed accessors with caller-supplied defaults, and in-process
// implementations.
package rules

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Lookup resolves a guild-scoped key. ok is false when the key is absent.
type Lookup interface {
	Get(ctx context.Context, guildID, key string) (value any, ok bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, guildID, key string) (any, bool)

// Get calls f.
func (f LookupFunc) Get(ctx context.Context, guildID, key string) (any, bool) {
	return f(ctx, guildID, key)
}

// Static is an in-memory Lookup with global defaults and per-guild overrides.
// It is safe for concurrent use.
type Static struct {
	mu       sync.RWMutex
	defaults map[string]any
	guilds   map[string]map[string]any
}

// NewStatic returns a Static seeded with defaults.
func NewStatic(defaults map[string]any) *Static {
	s := &Static{defaults: make(map[string]any), guilds: make(map[string]map[string]any)}
	for k, v := range defaults {
		s.defaults[k] = v
	}
	return s
}

// Get returns the guild override if present, else the default.
func (s *Static) Get(_ context.Context, guildID, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.guilds[guildID]; ok {
		if v, ok := g[key]; ok {
			return v, true
		}
	}
	v, ok := s.defaults[key]
	return v, ok
}

// Set stores a per-guild override. An empty guildID sets the global default.
func (s *Static) Set(guildID, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if guildID == "" {
		s.defaults[key] = value
		return
	}
	g, ok := s.guilds[guildID]
	if !ok {
		g = make(map[string]any)
		s.guilds[guildID] = g
	}
	g[key] = value
}

type staticFile struct {
	Defaults map[string]any            `yaml:"defaults"`
	Guilds   map[string]map[string]any `yaml:"guilds"`
}

// LoadStatic reads a YAML rule file of the form
//
//	defaults:
//	  combat.initiative_dice: 1d20
//	guilds:
//	  guild-1:
//	    ai.hostility.hostile_threshold: -30
//
// Postcondition: returns a populated Static or an error.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %q: %w", path, err)
	}
	return ParseStatic(data)
}

// ParseStatic parses rule YAML from memory.
func ParseStatic(data []byte) (*Static, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules YAML: %w", err)
	}
	s := NewStatic(f.Defaults)
	for guild, kv := range f.Guilds {
		for k, v := range kv {
			s.Set(guild, k, v)
		}
	}
	return s, nil
}

// Layered consults each Lookup in order and returns the first hit.
type Layered []Lookup

// Get implements Lookup.
func (l Layered) Get(ctx context.Context, guildID, key string) (any, bool) {
	for _, lk := range l {
		if lk == nil {
			continue
		}
		if v, ok := lk.Get(ctx, guildID, key); ok {
			return v, true
		}
	}
	return nil, false
}

// Int resolves key as an int, returning def when absent or not numeric.
func Int(ctx context.Context, l Lookup, guildID, key string, def int) int {
	v, ok := l.Get(ctx, guildID, key)
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return int(f)
}

// Float resolves key as a float64.
func Float(ctx context.Context, l Lookup, guildID, key string, def float64) float64 {
	v, ok := l.Get(ctx, guildID, key)
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return f
}

// String resolves key as a string.
func String(ctx context.Context, l Lookup, guildID, key, def string) string {
	v, ok := l.Get(ctx, guildID, key)
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Bool resolves key as a bool. Strings "true"/"1"/"yes"/"on" count as true.
func Bool(ctx context.Context, l Lookup, guildID, key string, def bool) bool {
	v, ok := l.Get(ctx, guildID, key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
		return def
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return def
	}
}

// Strings resolves key as a list of strings. A comma-separated string is
// split.
func Strings(ctx context.Context, l Lookup, guildID, key string, def []string) []string {
	v, ok := l.Get(ctx, guildID, key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case string:
		var out []string
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return def
	}
}

// FloatMap resolves key as a map of name → float64. Non-numeric entries
// are skipped.
func FloatMap(ctx context.Context, l Lookup, guildID, key string) map[string]float64 {
	v, ok := l.Get(ctx, guildID, key)
	if !ok {
		return nil
	}
	out := make(map[string]float64)
	switch t := v.(type) {
	case map[string]float64:
		for k, x := range t {
			out[k] = x
		}
	case map[string]any:
		for k, x := range t {
			if f, ok := toFloat(x); ok {
				out[k] = f
			}
		}
	default:
		return nil
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
