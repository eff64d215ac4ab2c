// Package tools provides the tool schema set and call validation.
//
// Information Hiding:
// - Schema storage and lookup implementation hidden
// - Validation and staleness-check internals hidden
// - The core never executes tools; execution happens behind Runner
package tools

import (
	"sort"

	"github.com/weftlabs/weft/ir"
)

// Schema describes one tool the model may call: its name, a description for
// the backend, a JSON-Schema parameter object, and its file-access class.
type Schema struct {
	Name        string
	Description string
	Parameters  map[string]any
	Access      ir.FileAccess
}

// Set is the closed, configuration-dependent collection of enabled tools.
type Set struct {
	schemas map[string]Schema
	order   []string
}

// NewSet creates a set from the given schemas. Later duplicates win.
func NewSet(schemas ...Schema) *Set {
	s := &Set{schemas: make(map[string]Schema)}
	for _, schema := range schemas {
		if _, exists := s.schemas[schema.Name]; !exists {
			s.order = append(s.order, schema.Name)
		}
		s.schemas[schema.Name] = schema
	}
	sort.Strings(s.order)
	return s
}

// Get returns a schema by name.
func (s *Set) Get(name string) (Schema, bool) {
	schema, ok := s.schemas[name]
	return schema, ok
}

// Has checks if a tool is enabled.
func (s *Set) Has(name string) bool {
	_, ok := s.schemas[name]
	return ok
}

// Schemas returns every enabled schema in sorted name order.
func (s *Set) Schemas() []Schema {
	result := make([]Schema, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, s.schemas[name])
	}
	return result
}

// Access reports the file-access class of a tool. Satisfies ir.AccessFunc.
func (s *Set) Access(name string) ir.FileAccess {
	return s.schemas[name].Access
}

// Builtin returns the default tool set.
func Builtin() []Schema {
	return []Schema{
		{
			Name:        "read_file",
			Description: "Read a file and return its content",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Path of the file to read"},
				},
				"required": []string{"path"},
			},
			Access: ir.AccessRead,
		},
		{
			Name:        "list_dir",
			Description: "List the entries of a directory",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Path of the directory to list"},
				},
				"required": []string{"path"},
			},
			Access: ir.AccessRead,
		},
		{
			Name:        "write_file",
			Description: "Create or overwrite a file with the given content",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "Path of the file to write"},
					"content": map[string]any{"type": "string", "description": "Full new file content"},
				},
				"required": []string{"path", "content"},
			},
			Access: ir.AccessMutate,
		},
		{
			Name:        "edit_file",
			Description: "Replace an exact text range in a file",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Path of the file to edit"},
					"old":  map[string]any{"type": "string", "description": "Exact text to replace; must appear in the file"},
					"new":  map[string]any{"type": "string", "description": "Replacement text"},
				},
				"required": []string{"path", "old", "new"},
			},
			Access: ir.AccessMutate,
		},
		{
			Name:        "shell",
			Description: "Execute a shell command and return its output",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{"type": "string", "description": "The shell command to execute"},
				},
				"required": []string{"command"},
			},
			Access: ir.AccessNone,
		},
	}
}

// Remote returns the external-integration tool schema. It is enabled only
// when at least one server is configured; otherwise ok is false and the tool
// stays out of the closed set.
func Remote(servers []string) (Schema, bool) {
	if len(servers) == 0 {
		return Schema{}, false
	}
	return Schema{
		Name:        "remote",
		Description: "Invoke a tool exposed by a configured external server",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"server": map[string]any{"type": "string", "description": "Name of the configured server"},
				"tool":   map[string]any{"type": "string", "description": "Tool to invoke on the server"},
				"input":  map[string]any{"type": "object", "description": "Tool input payload"},
			},
			"required": []string{"server", "tool"},
		},
	}, true
}
