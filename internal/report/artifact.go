// Package report renders the results of a run: a text report for people,
// JSON for machines and the persisted artifact.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Use-Tusk/checkout-conformance/internal/category"
	"github.com/Use-Tusk/checkout-conformance/internal/results"
)

// Artifact is the persisted summary of one run.
type Artifact struct {
	Summary   Summary    `json:"summary" yaml:"summary"`
	TestFiles []TestFile `json:"testFiles" yaml:"testFiles"`
}

type Summary struct {
	Total   int  `json:"total" yaml:"total"`
	Passed  int  `json:"passed" yaml:"passed"`
	Failed  int  `json:"failed" yaml:"failed"`
	Skipped int  `json:"skipped" yaml:"skipped"`
	Success bool `json:"success" yaml:"success"`
}

// TestFile groups the tests of one suite. Duration is in milliseconds.
type TestFile struct {
	Name     string       `json:"name" yaml:"name"`
	Duration int64        `json:"duration" yaml:"duration"`
	Tests    []TestResult `json:"tests" yaml:"tests"`
}

type TestResult struct {
	Name       string              `json:"name" yaml:"name"`
	Category   category.Category   `json:"category" yaml:"category"`
	Status     results.Status      `json:"status" yaml:"status"`
	Duration   int64               `json:"duration" yaml:"duration"`
	Error      string              `json:"error,omitempty" yaml:"error,omitempty"`
	Deviations []results.Deviation `json:"deviations,omitempty" yaml:"deviations,omitempty"`
}

const unnamedFile = "(unnamed)"

// BuildArtifact groups the snapshot's results by suite, in order of first
// appearance.
func BuildArtifact(s results.Snapshot) Artifact {
	a := Artifact{
		Summary: Summary{
			Total:   s.Total,
			Passed:  s.Passed,
			Failed:  s.Failed,
			Skipped: s.Skipped,
			Success: s.Success(),
		},
		TestFiles: []TestFile{},
	}

	index := map[string]int{}
	for _, o := range s.Results {
		name := o.File
		if name == "" {
			name = unnamedFile
		}
		i, ok := index[name]
		if !ok {
			i = len(a.TestFiles)
			index[name] = i
			a.TestFiles = append(a.TestFiles, TestFile{Name: name})
		}
		ms := o.Duration.Milliseconds()
		a.TestFiles[i].Duration += ms
		a.TestFiles[i].Tests = append(a.TestFiles[i].Tests, TestResult{
			Name:       o.Name,
			Category:   o.Category,
			Status:     o.Status,
			Duration:   ms,
			Error:      o.Error,
			Deviations: o.Deviations,
		})
	}
	return a
}

// Marshal encodes the artifact as "json" or "yaml".
func (a Artifact) Marshal(format string) ([]byte, error) {
	switch format {
	case "", "json":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(a); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "yaml":
		return yaml.Marshal(a)
	default:
		return nil, fmt.Errorf("unsupported results format %q", format)
	}
}

// WriteArtifact saves the artifact for s into dir as
// results-<timestamp>.<format> and returns the file path.
func WriteArtifact(dir, format string, s results.Snapshot, now time.Time) (string, error) {
	if format == "" {
		format = "json"
	}
	data, err := BuildArtifact(s).Marshal(format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("results-%s.%s", now.Format("20060102-150405"), format))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}
	return path, nil
}
