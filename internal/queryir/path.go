package queryir

import (
	"fmt"
	"strings"
)

// NavigablePath is an immutable hierarchical key identifying a position in
// the from-graph of a query: a root, a join, an attribute or a treat.
type NavigablePath struct {
	parent *NavigablePath
	local  string
	alias  string
	full   string
}

// NewRootPath creates the path of a from-clause root.
func NewRootPath(name, alias string) *NavigablePath {
	p := &NavigablePath{local: name, alias: alias}
	p.full = decorate(name, alias)
	return p
}

func decorate(local, alias string) string {
	if alias == "" {
		return local
	}
	return local + "(" + alias + ")"
}

// Append returns the child path for an attribute or part name.
func (p *NavigablePath) Append(local string) *NavigablePath {
	return p.AppendAliased(local, "")
}

// AppendAliased returns the child path for an aliased explicit join.
func (p *NavigablePath) AppendAliased(local, alias string) *NavigablePath {
	return &NavigablePath{
		parent: p,
		local:  local,
		alias:  alias,
		full:   p.full + "." + decorate(local, alias),
	}
}

// Treat returns the path of p narrowed to entity.
func (p *NavigablePath) Treat(entity string) *NavigablePath {
	return p.Append("{treat:" + entity + "}")
}

// Parent returns the parent path, or nil for a root.
func (p *NavigablePath) Parent() *NavigablePath { return p.parent }

// Local returns the last segment without alias decoration.
func (p *NavigablePath) Local() string { return p.local }

// Alias returns the alias of the last segment, if any.
func (p *NavigablePath) Alias() string { return p.alias }

// Full returns the complete key. Equal keys denote the same position.
func (p *NavigablePath) Full() string { return p.full }

func (p *NavigablePath) String() string { return p.full }

// IsTreat reports whether the last segment is a treat.
func (p *NavigablePath) IsTreat() bool {
	return strings.HasPrefix(p.local, "{treat:")
}

// PluralPart names the parts of a plural attribute.
type PluralPart int

const (
	PartNone PluralPart = iota
	PartElement
	PartIndex
)

func (pp PluralPart) String() string {
	switch pp {
	case PartElement:
		return "{element}"
	case PartIndex:
		return "{index}"
	}
	return ""
}

// Step is one navigation step of a Path. Exactly one field is set.
type Step struct {
	Attribute string
	Treat     string
	Part      PluralPart
}

// Path is a path expression rooted at a from-clause alias.
type Path struct {
	Alias string
	Steps []Step
}

func (*Path) expressionNode() {}

// Attr returns a copy of p extended with attribute steps.
func (p *Path) Attr(names ...string) *Path {
	out := &Path{Alias: p.Alias, Steps: append([]Step(nil), p.Steps...)}
	for _, n := range names {
		out.Steps = append(out.Steps, Step{Attribute: n})
	}
	return out
}

// String renders p in the syntax accepted by ParsePath.
func (p *Path) String() string {
	s := p.Alias
	for _, st := range p.Steps {
		switch {
		case st.Treat != "":
			s = "treat(" + s + " as " + st.Treat + ")"
		case st.Part == PartIndex:
			s = "index(" + s + ")"
		case st.Part == PartElement:
			s = "value(" + s + ")"
		default:
			s += "." + st.Attribute
		}
	}
	return s
}

// ParsePath parses the path syntax:
//
//	alias(.attribute)*
//	treat(<path> as Entity)(.attribute)*
//	index(<path>) | key(<path>) | value(<path>) | element(<path>)
func ParsePath(s string) (*Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}
	var base *Path
	rest := s
	if fn, inner, tail, ok := splitCall(s); ok {
		switch fn {
		case "treat":
			idx := strings.LastIndex(inner, " as ")
			if idx < 0 {
				return nil, fmt.Errorf("path %q: treat needs 'as'", s)
			}
			p, err := ParsePath(inner[:idx])
			if err != nil {
				return nil, err
			}
			entity := strings.TrimSpace(inner[idx+4:])
			if entity == "" {
				return nil, fmt.Errorf("path %q: treat needs an entity name", s)
			}
			p.Steps = append(p.Steps, Step{Treat: entity})
			base = p
		case "index", "key":
			p, err := ParsePath(inner)
			if err != nil {
				return nil, err
			}
			p.Steps = append(p.Steps, Step{Part: PartIndex})
			base = p
		case "value", "element":
			p, err := ParsePath(inner)
			if err != nil {
				return nil, err
			}
			p.Steps = append(p.Steps, Step{Part: PartElement})
			base = p
		default:
			return nil, fmt.Errorf("path %q: unknown path function %q", s, fn)
		}
		rest = tail
		if rest != "" && !strings.HasPrefix(rest, ".") {
			return nil, fmt.Errorf("path %q: unexpected %q", s, rest)
		}
		rest = strings.TrimPrefix(rest, ".")
	}
	if rest == "" {
		return base, nil
	}
	segments := strings.Split(rest, ".")
	for _, seg := range segments {
		if seg == "" || strings.ContainsAny(seg, "() ") {
			return nil, fmt.Errorf("path %q: invalid segment %q", s, seg)
		}
	}
	if base == nil {
		return &Path{Alias: segments[0], Steps: attrSteps(segments[1:])}, nil
	}
	base.Steps = append(base.Steps, attrSteps(segments)...)
	return base, nil
}

// MustParsePath is like ParsePath but panics on error.
// Use only in tests or with constant paths.
func MustParsePath(s string) *Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func attrSteps(names []string) []Step {
	steps := make([]Step, 0, len(names))
	for _, n := range names {
		steps = append(steps, Step{Attribute: n})
	}
	return steps
}

// splitCall recognizes "fn(inner)tail" with balanced parentheses.
func splitCall(s string) (fn, inner, tail string, ok bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || strings.ContainsAny(s[:open], ". ") {
		return "", "", "", false
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[:open], s[open+1 : i], s[i+1:], true
			}
		}
	}
	return "", "", "", false
}
