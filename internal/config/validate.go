package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

// ValidationResult is the outcome of ValidateConfigFile.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	UnknownKeys []string `json:"unknown_keys,omitempty"`
	MissingKeys []string `json:"missing_keys,omitempty"`
	SchemaHint  string   `json:"schema_hint,omitempty"`
}

func (r *ValidationResult) fail(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// ValidateConfigFile loads configPath in place of the current config and
// reports unknown keys, invalid values and keys a run requires.
func ValidateConfigFile(configPath string) *ValidationResult {
	r := &ValidationResult{Valid: true}
	if !utils.FileExists(configPath) {
		r.fail("Config file not found: " + configPath)
		return r
	}

	Invalidate()
	if err := Load(configPath); err != nil {
		r.fail(fmt.Sprintf("Failed to parse config: %s", err))
		return r
	}

	r.UnknownKeys = CheckUnknownKeys()
	for _, key := range r.UnknownKeys {
		if s := suggestCorrectKey(key); s != "" {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Unknown key '%s' - did you mean '%s'?", key, s))
		} else {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Unknown key '%s' will be ignored", key))
		}
	}

	cfg, err := Get()
	if err != nil {
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			for _, e := range joined.Unwrap() {
				r.fail(e.Error())
			}
		} else {
			r.fail(err.Error())
		}
	} else {
		r.MissingKeys = cfg.CheckRequiredForRun()
		for _, key := range r.MissingKeys {
			r.fail("Missing required field: " + key)
		}
	}

	if !r.Valid || len(r.Warnings) > 0 {
		r.SchemaHint = schemaHint
	}
	return r
}

// CheckRequiredForRun returns the keys a run needs that are not set.
func (cfg *Config) CheckRequiredForRun() []string {
	if cfg.Target.BaseURL == "" {
		return []string{"target.base_url"}
	}
	return nil
}

// keySchema lists the dotted keys Config accepts. Keys under a map field
// are free-form.
type keySchema struct {
	leaves   []string
	known    map[string]bool
	freeForm []string
}

var schemaOnce = sync.OnceValue(func() keySchema {
	s := keySchema{known: map[string]bool{}}
	s.walk(reflect.TypeOf(Config{}), "")
	return s
})

func (s *keySchema) walk(t reflect.Type, prefix string) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	for _, f := range reflect.VisibleFields(t) {
		tag := f.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		s.leaves = append(s.leaves, key)
		s.known[key] = true

		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		switch ft.Kind() {
		case reflect.Struct:
			s.walk(ft, key)
		case reflect.Map:
			s.freeForm = append(s.freeForm, key+".")
		}
	}
}

func (s keySchema) accepts(key string) bool {
	if s.known[key] {
		return true
	}
	return slices.ContainsFunc(s.freeForm, func(p string) bool { return strings.HasPrefix(key, p) })
}

// CheckUnknownKeys returns the loaded keys Config has no field for, sorted.
func CheckUnknownKeys() []string {
	state.Lock()
	keys := state.k.Keys()
	state.Unlock()

	schema := schemaOnce()
	var unknown []string
	for _, key := range keys {
		if !schema.accepts(key) {
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)
	return unknown
}

// suggestCorrectKey returns the key unknownKey most likely meant. A bare
// leaf name such as "base_url" maps to its full key; otherwise the closest
// key within three edits wins.
func suggestCorrectKey(unknownKey string) string {
	leaves := schemaOnce().leaves
	for _, key := range leaves {
		if strings.HasSuffix(key, "."+unknownKey) {
			return key
		}
	}

	best, bestDist := "", 4
	for _, key := range leaves {
		if d := levenshtein.ComputeDistance(unknownKey, key); d < bestDist {
			best, bestDist = key, d
		}
	}
	return best
}

const schemaHint = `target:
  base_url: http://localhost:8080   # required
  api_key: sk_test_123              # optional, sent as a bearer token
  start:
    command: "npm start"            # optional, conform manages the service
  readiness_check:
    command: "curl -fsS http://localhost:8080/health"
    timeout: 30s
run:
  concurrency: 4
results:
  format: json`
