package core

import (
	"sort"
	"strings"
)

// Candidate is a named set of prompt templates under optimization. Templates
// may contain {placeholder} tokens that are substituted at render time.
// A Candidate is treated as immutable once produced: adopting or passing one
// on always goes through Clone.
type Candidate map[string]string

// Clone returns an independent copy of the candidate.
func (c Candidate) Clone() Candidate {
	cloned := make(Candidate, len(c))
	for name, text := range c {
		cloned[name] = text
	}
	return cloned
}

// Names returns the prompt names in deterministic order.
func (c Candidate) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render substitutes {key} placeholders in the named prompt with the given
// inputs. Unknown placeholders are left untouched.
func (c Candidate) Render(name string, inputs map[string]string) string {
	rendered := c[name]
	for key, value := range inputs {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}
	return rendered
}

// TestCase is one entry in the fixed evaluation battery: a set of template
// inputs plus descriptive metadata carried through to reports.
type TestCase struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Inputs      map[string]string `json:"inputs"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
