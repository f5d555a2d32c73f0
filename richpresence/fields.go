// Package richpresence reads Dota 2 Rich Presence payloads. Every function is
// total: missing or malformed fields read as absent, never as an error.
package richpresence

import (
	"sort"
	"strings"

	"chorus/presence-bridge/models"
)

// Fields is the single shape classifiers see. It keeps both forms the network
// layer may deliver (a flattened object and the ordered raw pair list) and
// resolves keys case-insensitively, object form first.
type Fields struct {
	object map[string]string
	raw    []models.KV
}

func New(object map[string]string, raw []models.KV) Fields {
	return Fields{object: object, raw: raw}
}

func FromSample(s *models.RawPresenceSample) Fields {
	if s == nil {
		return Fields{}
	}
	return New(s.RichPresence, s.RichPresenceRaw)
}

// Get looks key up in the object form, then in the raw list.
func (f Fields) Get(key string) (string, bool) {
	if v, ok := f.Object(key); ok {
		return v, true
	}
	return f.Raw(key)
}

func (f Fields) Object(key string) (string, bool) {
	if len(f.object) == 0 {
		return "", false
	}
	if v, ok := f.object[key]; ok {
		return v, true
	}
	want := strings.ToLower(key)
	// sorted so keys differing only in case resolve the same way every time
	keys := make([]string, 0, len(f.object))
	for k := range f.object {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.ToLower(k) == want {
			return f.object[k], true
		}
	}
	return "", false
}

func (f Fields) Raw(key string) (string, bool) {
	want := strings.ToLower(key)
	for _, kv := range f.raw {
		if strings.ToLower(kv.Key) == want {
			return kv.Value, true
		}
	}
	return "", false
}

// Has reports whether key resolves to a non-blank value in either form.
func (f Fields) Has(key string) bool {
	v, ok := f.Get(key)
	return ok && strings.TrimSpace(v) != ""
}

// HasObject is Has restricted to the object form.
func (f Fields) HasObject(key string) bool {
	v, ok := f.Object(key)
	return ok && strings.TrimSpace(v) != ""
}

// First returns the first non-blank value among keys, in order.
func (f Fields) First(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := f.Get(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (f Fields) Empty() bool {
	return len(f.object) == 0 && len(f.raw) == 0
}

// Pairs lists every pair: raw order first, then object keys the raw list lacks, sorted.
func (f Fields) Pairs() []models.KV {
	out := make([]models.KV, 0, len(f.raw)+len(f.object))
	seen := make(map[string]bool, len(f.raw))
	for _, kv := range f.raw {
		out = append(out, kv)
		seen[strings.ToLower(kv.Key)] = true
	}
	keys := make([]string, 0, len(f.object))
	for k := range f.object {
		if !seen[strings.ToLower(k)] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, models.KV{Key: k, Value: f.object[k]})
	}
	return out
}

// Text flattens every pair into a lower-cased "key=value" blob for searching.
func (f Fields) Text() string {
	var b strings.Builder
	for i, kv := range f.Pairs() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ToLower(kv.Key))
		b.WriteByte('=')
		b.WriteString(strings.ToLower(kv.Value))
	}
	return b.String()
}

// ObjectFromPairs builds the flattened object form; later pairs win.
func ObjectFromPairs(pairs []models.KV) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		if kv.Key == "" {
			continue
		}
		out[kv.Key] = kv.Value
	}
	return out
}
