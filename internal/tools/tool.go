package tools

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrInvalidParams     = errors.New("invalid params")
	ErrInvalidInputCount = errors.New("invalid number of input files")
)

// Engine names an external processing service
type Engine string

const (
	EngineStirling  Engine = "stirling"
	EngineGotenberg Engine = "gotenberg"
)

// Kind is the value type a parameter accepts
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	// KindURL is a string the engine fetches; hosts must be public
	KindURL Kind = "url"
)

// Param describes one user-facing option of a tool and the engine form field it maps to
type Param struct {
	Name     string `json:"name"`
	Field    string `json:"-"`
	Kind     Kind   `json:"kind"`
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
	// Rule is a validator tag applied to the typed value, e.g. "oneof=90 180 270" or "min=1,max=9"
	Rule string `json:"rule,omitempty"`
}

// Tool describes how one route maps onto an engine endpoint
type Tool struct {
	Name      string            `json:"name"`
	Title     string            `json:"title"`
	Category  string            `json:"category"`
	Engine    Engine            `json:"engine"`
	Path      string            `json:"-"`
	FileField string            `json:"-"`
	FileName  string            `json:"-"`
	MinFiles  int               `json:"min_files"`
	MaxFiles  int               `json:"max_files"`
	Params    []Param           `json:"params"`
	Static    map[string]string `json:"-"`
	OutputExt string            `json:"output_ext"`
}

var (
	validate = newValidator()
	registry = buildRegistry(catalog)
)

func buildRegistry(list []Tool) map[string]Tool {
	byName := make(map[string]Tool, len(list))
	for _, t := range list {
		if _, dup := byName[t.Name]; dup {
			panic(fmt.Sprintf("tools: duplicate tool %q", t.Name))
		}
		byName[t.Name] = t
	}
	return byName
}

// Lookup returns the tool registered under name
func Lookup(name string) (Tool, error) {
	t, ok := registry[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// List returns every tool sorted by category, then name
func List() []Tool {
	out := make([]Tool, 0, len(registry))
	for _, t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// URLValues returns the built values of the tool's URL params
func (t Tool) URLValues(fields map[string]string) []string {
	var out []string
	for _, p := range t.Params {
		if p.Kind != KindURL {
			continue
		}
		if v, ok := fields[p.Field]; ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CheckInputs verifies the number of input files the tool is called with
func (t Tool) CheckInputs(n int) error {
	if n < t.MinFiles {
		return fmt.Errorf("%w: %s needs at least %d, got %d", ErrInvalidInputCount, t.Name, t.MinFiles, n)
	}
	if n > t.MaxFiles {
		return fmt.Errorf("%w: %s accepts at most %d, got %d", ErrInvalidInputCount, t.Name, t.MaxFiles, n)
	}
	return nil
}

// BuildFields turns user params into the engine's multipart form fields.
// Unknown params, missing required params and rule violations are rejected.
func (t Tool) BuildFields(params map[string]any) (map[string]string, error) {
	known := make(map[string]struct{}, len(t.Params))
	for _, p := range t.Params {
		known[p.Name] = struct{}{}
	}

	var unknown []string
	for name := range params {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown params %s", ErrInvalidParams, strings.Join(unknown, ", "))
	}

	fields := make(map[string]string, len(t.Params)+len(t.Static))
	for k, v := range t.Static {
		fields[k] = v
	}

	for _, p := range t.Params {
		raw, present := params[p.Name]
		if !present || raw == nil {
			if p.Required {
				return nil, fmt.Errorf("%w: %s is required", ErrInvalidParams, p.Name)
			}
			if p.Default != "" {
				fields[p.Field] = p.Default
			}
			continue
		}

		value, err := p.coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, p.Name, err)
		}

		if p.Rule != "" {
			if err := validate.Var(value, p.Rule); err != nil {
				return nil, fmt.Errorf("%w: %s must satisfy %q", ErrInvalidParams, p.Name, p.Rule)
			}
		}

		fields[p.Field] = format(value)
	}

	return fields, nil
}

// coerce converts a decoded JSON value into the Go type the param's kind expects
func (p Param) coerce(raw any) (any, error) {
	switch p.Kind {
	case KindInt:
		switch v := raw.(type) {
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("expected an integer, got %v", v)
			}
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("expected an integer, got %q", v)
			}
			return n, nil
		}
	case KindFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("expected a number, got %q", v)
			}
			return f, nil
		}
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", v)
			}
			return b, nil
		}
	default:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", p.Kind, raw)
}

func format(value any) string {
	switch v := value.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
