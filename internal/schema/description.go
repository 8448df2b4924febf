package schema

import (
	"context"
	_ "embed"
	"fmt"
	"mime"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi/checkout.yaml
var defaultDescription []byte

// Description is the loaded interface contract, keyed
// path -> method -> status -> content-type -> schema. It is immutable after
// load and every schema reference in it is already resolved, so it is safe
// to share between goroutines.
type Description struct {
	Title   string
	Version string
	paths   map[string]*PathSpec
	order   []string
}

// PathSpec holds the operations defined for one exact path.
type PathSpec struct {
	operations map[string]*OperationSpec
}

// OperationSpec holds the responses defined for one method on a path.
type OperationSpec struct {
	ID        string
	responses map[int]*ResponseSpec
}

// ResponseSpec holds the media types defined for one status code.
type ResponseSpec struct {
	Status  int
	content map[string]*openapi3.Schema
}

// Default loads the checkout description embedded in the binary.
func Default() (*Description, error) {
	return LoadData(defaultDescription)
}

// LoadData parses an OpenAPI 3 document from YAML or JSON bytes.
func LoadData(data []byte) (*Description, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse interface description: %w", err)
	}
	return build(loader, doc)
}

// LoadFile parses an OpenAPI 3 document from disk. Relative file
// references inside the document are resolved against its location.
func LoadFile(path string) (*Description, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load interface description %s: %w", path, err)
	}
	return build(loader, doc)
}

func build(loader *openapi3.Loader, doc *openapi3.T) (*Description, error) {
	ctx := loader.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid interface description: %w", err)
	}

	d := &Description{paths: make(map[string]*PathSpec)}
	if doc.Info != nil {
		d.Title = doc.Info.Title
		d.Version = doc.Info.Version
	}
	if doc.Paths == nil {
		return d, nil
	}

	var roots []*openapi3.SchemaRef
	for path, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		ps := &PathSpec{operations: make(map[string]*OperationSpec)}
		for method, op := range item.Operations() {
			spec := &OperationSpec{ID: op.OperationID, responses: make(map[int]*ResponseSpec)}
			if op.Responses != nil {
				for code, ref := range op.Responses.Map() {
					// Only exact numeric codes take part in matching; "default"
					// and range keys are not a contract for a specific status.
					status, err := strconv.Atoi(code)
					if err != nil || ref == nil || ref.Value == nil {
						continue
					}
					rs := &ResponseSpec{Status: status, content: make(map[string]*openapi3.Schema)}
					for ct, mt := range ref.Value.Content {
						if mt == nil || mt.Schema == nil || mt.Schema.Value == nil {
							continue
						}
						rs.content[strings.ToLower(ct)] = mt.Schema.Value
						roots = append(roots, mt.Schema)
					}
					spec.responses[status] = rs
				}
			}
			ps.operations[strings.ToLower(method)] = spec
		}
		d.paths[path] = ps
		d.order = append(d.order, path)
	}
	sort.Strings(d.order)

	expand(roots)
	return d, nil
}

// Paths returns every defined path in sorted order.
func (d *Description) Paths() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Path looks up an exact path.
func (d *Description) Path(path string) (*PathSpec, bool) {
	ps, ok := d.paths[path]
	return ps, ok
}

// Operation looks up a method, case-insensitively.
func (p *PathSpec) Operation(method string) (*OperationSpec, bool) {
	op, ok := p.operations[strings.ToLower(method)]
	return op, ok
}

// Methods returns the lower-cased methods defined on the path, sorted.
func (p *PathSpec) Methods() []string {
	out := make([]string, 0, len(p.operations))
	for m := range p.operations {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Response looks up an exact status code.
func (o *OperationSpec) Response(status int) (*ResponseSpec, bool) {
	rs, ok := o.responses[status]
	return rs, ok
}

// Statuses returns the defined status codes in ascending order.
func (o *OperationSpec) Statuses() []int {
	out := make([]int, 0, len(o.responses))
	for s := range o.responses {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// JSONSchema returns the schema for the first JSON media type defined on
// the response: application/json or any +json suffix type.
func (r *ResponseSpec) JSONSchema() (*openapi3.Schema, string, bool) {
	if s, ok := r.content["application/json"]; ok {
		return s, "application/json", true
	}
	types := make([]string, 0, len(r.content))
	for ct := range r.content {
		types = append(types, ct)
	}
	sort.Strings(types)
	for _, ct := range types {
		if isJSONMediaType(ct) {
			return r.content[ct], ct, true
		}
	}
	return nil, "", false
}

func isJSONMediaType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = ct
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// expand drops the $ref markers of every resolved schema reference so that
// schemas render fully inlined. References into recursive schemas keep
// their marker, otherwise rendering would never terminate.
func expand(roots []*openapi3.SchemaRef) {
	cyclic := make(map[*openapi3.Schema]bool)
	onStack := make(map[*openapi3.Schema]bool)
	done := make(map[*openapi3.Schema]bool)

	var findCycles func(s *openapi3.Schema)
	findCycles = func(s *openapi3.Schema) {
		if s == nil || done[s] {
			return
		}
		onStack[s] = true
		for _, child := range schemaChildren(s) {
			if child == nil || child.Value == nil {
				continue
			}
			if onStack[child.Value] {
				cyclic[child.Value] = true
				continue
			}
			findCycles(child.Value)
		}
		onStack[s] = false
		done[s] = true
	}
	for _, r := range roots {
		findCycles(r.Value)
	}

	seen := make(map[*openapi3.SchemaRef]bool)
	var inline func(r *openapi3.SchemaRef)
	inline = func(r *openapi3.SchemaRef) {
		if r == nil || r.Value == nil || seen[r] {
			return
		}
		seen[r] = true
		if cyclic[r.Value] {
			return
		}
		r.Ref = ""
		for _, child := range schemaChildren(r.Value) {
			inline(child)
		}
	}
	for _, r := range roots {
		inline(r)
	}
}

func schemaChildren(s *openapi3.Schema) []*openapi3.SchemaRef {
	var out []*openapi3.SchemaRef
	for _, p := range s.Properties {
		out = append(out, p)
	}
	if s.Items != nil {
		out = append(out, s.Items)
	}
	out = append(out, s.AllOf...)
	out = append(out, s.AnyOf...)
	out = append(out, s.OneOf...)
	if s.Not != nil {
		out = append(out, s.Not)
	}
	if s.AdditionalProperties.Schema != nil {
		out = append(out, s.AdditionalProperties.Schema)
	}
	return out
}
