// Package types implements the algebraic type representation shared by the
// subtyping checker and the constraint solver: unions, intersections,
// tuples, records, procedures, nominal types, and the top/bottom/any/logic
// singletons.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// SourceLocation points back at the source text a type node was derived
// from, for diagnostics. Optional on every node.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// Type is the interface implemented by every node in the type algebra.
type Type interface {
	String() string
	Apply(Subst) Type
	FreeTypeVariables() []TVar
	Location() *SourceLocation
}

// TVar is a type variable: either an unknown the solver may bind, or a
// rigid variable treated as opaque by the checker.
type TVar struct {
	Name string
	Loc  *SourceLocation
}

func (t TVar) String() string                   { return t.Name }
func (t TVar) Location() *SourceLocation         { return t.Loc }
func (t TVar) FreeTypeVariables() []TVar         { return []TVar{t} }
func (t TVar) Apply(s Subst) Type {
	return applyWithCycleCheck(t, s, map[string]bool{})
}

// TTop is the universal supertype.
type TTop struct{ Loc *SourceLocation }

func (t TTop) String() string             { return "Top" }
func (t TTop) Location() *SourceLocation  { return t.Loc }
func (t TTop) FreeTypeVariables() []TVar  { return nil }
func (t TTop) Apply(Subst) Type           { return t }

// TBot is the universal subtype, equivalent to Union([]).
type TBot struct{ Loc *SourceLocation }

func (t TBot) String() string             { return "Bot" }
func (t TBot) Location() *SourceLocation  { return t.Loc }
func (t TBot) FreeTypeVariables() []TVar  { return nil }
func (t TBot) Apply(Subst) Type           { return t }

// TAny matches, and is matched by, any other type on either side of a
// relation.
type TAny struct{ Loc *SourceLocation }

func (t TAny) String() string             { return "Any" }
func (t TAny) Location() *SourceLocation  { return t.Loc }
func (t TAny) FreeTypeVariables() []TVar  { return nil }
func (t TAny) Apply(Subst) Type           { return t }

// NominalKind distinguishes the four flavors of named type.
type NominalKind int

const (
	Instance NominalKind = iota
	Class
	Alias
	Interface
)

func (k NominalKind) String() string {
	switch k {
	case Instance:
		return "instance"
	case Class:
		return "class"
	case Alias:
		return "alias"
	case Interface:
		return "interface"
	default:
		return "unknown"
	}
}

// TNominal is a named type, optionally parameterized: a class, an
// interface, an instance of one, or an alias for another type.
type TNominal struct {
	Kind NominalKind
	Name string
	Args []Type
	Loc  *SourceLocation
}

func (t TNominal) Location() *SourceLocation { return t.Loc }

func (t TNominal) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s<%s>", t.Name, strings.Join(parts, ", "))
}

func (t TNominal) Apply(s Subst) Type {
	return applyWithCycleCheck(t, s, map[string]bool{})
}

func (t TNominal) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, a := range t.Args {
		vars = append(vars, a.FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// TUnion is a normalized union of at least two alternatives.
type TUnion struct {
	Types []Type
	Loc   *SourceLocation
}

func (t TUnion) Location() *SourceLocation { return t.Loc }

func (t TUnion) String() string {
	parts := make([]string, len(t.Types))
	for i, m := range t.Types {
		parts[i] = m.String()
	}
	return strings.Join(parts, " | ")
}

func (t TUnion) Apply(s Subst) Type {
	applied := make([]Type, len(t.Types))
	for i, m := range t.Types {
		applied[i] = applyWithCycleCheck(m, s, map[string]bool{})
	}
	return NormalizeUnion(applied)
}

func (t TUnion) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, m := range t.Types {
		vars = append(vars, m.FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// TIntersection is a normalized intersection of at least two conjuncts.
type TIntersection struct {
	Types []Type
	Loc   *SourceLocation
}

func (t TIntersection) Location() *SourceLocation { return t.Loc }

func (t TIntersection) String() string {
	parts := make([]string, len(t.Types))
	for i, m := range t.Types {
		parts[i] = m.String()
	}
	return strings.Join(parts, " & ")
}

func (t TIntersection) Apply(s Subst) Type {
	applied := make([]Type, len(t.Types))
	for i, m := range t.Types {
		applied[i] = applyWithCycleCheck(m, s, map[string]bool{})
	}
	return NormalizeIntersection(applied)
}

func (t TIntersection) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, m := range t.Types {
		vars = append(vars, m.FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// TTuple is a fixed-length, position-sensitive product type.
type TTuple struct {
	Elements []Type
	Loc      *SourceLocation
}

func (t TTuple) Location() *SourceLocation { return t.Loc }

func (t TTuple) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		parts[i] = e.String()
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
}

func (t TTuple) Apply(s Subst) Type {
	elems := make([]Type, len(t.Elements))
	for i, e := range t.Elements {
		elems[i] = applyWithCycleCheck(e, s, map[string]bool{})
	}
	return TTuple{Elements: elems, Loc: t.Loc}
}

func (t TTuple) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, e := range t.Elements {
		vars = append(vars, e.FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// TRecord is a key-sensitive product type. Width subtyping is handled by
// the checker, not by this representation.
type TRecord struct {
	Fields map[string]Type
	Loc    *SourceLocation
}

func (t TRecord) Location() *SourceLocation { return t.Loc }

func (t TRecord) String() string {
	keys := sortedKeys(t.Fields)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, t.Fields[k].String())
	}
	return fmt.Sprintf("{ %s }", strings.Join(parts, ", "))
}

func (t TRecord) Apply(s Subst) Type {
	fields := make(map[string]Type, len(t.Fields))
	for k, v := range t.Fields {
		fields[k] = applyWithCycleCheck(v, s, map[string]bool{})
	}
	return TRecord{Fields: fields, Loc: t.Loc}
}

func (t TRecord) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, k := range sortedKeys(t.Fields) {
		vars = append(vars, t.Fields[k].FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// Param is one formal parameter of a TProc, named for keyword matching.
type Param struct {
	Name string
	Type Type
}

// TProc is a procedure (method/function) type: a parameter list and a
// return type. Parameters are contravariant, the return covariant.
type TProc struct {
	Params []Param
	Return Type
	Loc    *SourceLocation
}

func (t TProc) Location() *SourceLocation { return t.Loc }

func (t TProc) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		if p.Name == "" {
			parts[i] = p.Type.String()
		} else {
			parts[i] = fmt.Sprintf("%s: %s", p.Name, p.Type.String())
		}
	}
	return fmt.Sprintf("(%s) -> %s", strings.Join(parts, ", "), t.Return.String())
}

func (t TProc) Apply(s Subst) Type {
	params := make([]Param, len(t.Params))
	for i, p := range t.Params {
		params[i] = Param{Name: p.Name, Type: applyWithCycleCheck(p.Type, s, map[string]bool{})}
	}
	return TProc{Params: params, Return: applyWithCycleCheck(t.Return, s, map[string]bool{}), Loc: t.Loc}
}

func (t TProc) FreeTypeVariables() []TVar {
	vars := []TVar{}
	for _, p := range t.Params {
		vars = append(vars, p.Type.FreeTypeVariables()...)
	}
	vars = append(vars, t.Return.FreeTypeVariables()...)
	return uniqueTVars(vars)
}

// LogicMode distinguishes the flavors of a Logic (boolean-ish expression
// result) type that has not yet been coerced into the Bool nominal.
type LogicMode int

const (
	Truthy LogicMode = iota
	Falsy
	Envelope
)

func (m LogicMode) String() string {
	switch m {
	case Truthy:
		return "truthy"
	case Falsy:
		return "falsy"
	default:
		return "envelope"
	}
}

// TLogic is the result type of a boolean-context expression (an `if`
// condition, an `&&`/`||` operand) before it is coerced to Bool at the
// constraint-store boundary.
type TLogic struct {
	Mode LogicMode
	Loc  *SourceLocation
}

func (t TLogic) String() string             { return "Logic<" + t.Mode.String() + ">" }
func (t TLogic) Location() *SourceLocation  { return t.Loc }
func (t TLogic) FreeTypeVariables() []TVar  { return nil }
func (t TLogic) Apply(Subst) Type           { return t }

// Subst maps type variable names to replacement types.
type Subst map[string]Type

// Compose returns a substitution equivalent to applying s1 then s2.
func (s1 Subst) Compose(s2 Subst) Subst {
	out := Subst{}
	for k, v := range s2 {
		out[k] = v
	}
	for k, v := range s1 {
		out[k] = v.Apply(s2)
	}
	return out
}

func applyWithCycleCheck(t Type, s Subst, visited map[string]bool) Type {
	if tv, ok := t.(TVar); ok {
		if visited[tv.Name] {
			return tv
		}
		replacement, ok := s[tv.Name]
		if !ok {
			return tv
		}
		if other, ok := replacement.(TVar); ok && other.Name == tv.Name {
			return tv
		}
		next := copyVisited(visited)
		next[tv.Name] = true
		return applyWithCycleCheck(replacement, s, next)
	}
	if n, ok := t.(TNominal); ok {
		if len(n.Args) == 0 {
			return n
		}
		args := make([]Type, len(n.Args))
		for i, a := range n.Args {
			args[i] = applyWithCycleCheck(a, s, visited)
		}
		return TNominal{Kind: n.Kind, Name: n.Name, Args: args, Loc: n.Loc}
	}
	return t.Apply(s)
}

func copyVisited(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func uniqueTVars(vars []TVar) []TVar {
	seen := map[string]bool{}
	out := []TVar{}
	for _, v := range vars {
		if !seen[v.Name] {
			seen[v.Name] = true
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(fields map[string]Type) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeUnion flattens nested unions, drops duplicates, and collapses
// a singleton to its member. An empty union is Bot.
func NormalizeUnion(members []Type) Type {
	flat := flattenUnion(members)
	unique := dedupeByString(flat)
	if len(unique) == 0 {
		return TBot{}
	}
	if len(unique) == 1 {
		return unique[0]
	}
	sortByString(unique)
	return TUnion{Types: unique}
}

func flattenUnion(members []Type) []Type {
	flat := []Type{}
	for _, m := range members {
		if u, ok := m.(TUnion); ok {
			flat = append(flat, flattenUnion(u.Types)...)
		} else {
			flat = append(flat, m)
		}
	}
	return flat
}

// NormalizeIntersection flattens nested intersections, drops duplicates,
// and collapses a singleton to its member. An empty intersection is Top.
func NormalizeIntersection(conjuncts []Type) Type {
	flat := flattenIntersection(conjuncts)
	unique := dedupeByString(flat)
	if len(unique) == 0 {
		return TTop{}
	}
	if len(unique) == 1 {
		return unique[0]
	}
	sortByString(unique)
	return TIntersection{Types: unique}
}

func flattenIntersection(conjuncts []Type) []Type {
	flat := []Type{}
	for _, m := range conjuncts {
		if i, ok := m.(TIntersection); ok {
			flat = append(flat, flattenIntersection(i.Types)...)
		} else {
			flat = append(flat, m)
		}
	}
	return flat
}

func dedupeByString(types []Type) []Type {
	seen := map[string]bool{}
	out := []Type{}
	for _, t := range types {
		s := t.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, t)
		}
	}
	return out
}

func sortByString(types []Type) {
	sort.Slice(types, func(i, j int) bool { return types[i].String() < types[j].String() })
}

// NodeCount returns the number of type constructors in t's tree, counting
// leaves as 1. Used as the nesting-level metric for the solver's
// invariant tiebreak.
func NodeCount(t Type) int {
	switch v := t.(type) {
	case TUnion:
		return 1 + sumNodeCounts(v.Types)
	case TIntersection:
		return 1 + sumNodeCounts(v.Types)
	case TTuple:
		return 1 + sumNodeCounts(v.Elements)
	case TRecord:
		n := 1
		for _, k := range sortedKeys(v.Fields) {
			n += NodeCount(v.Fields[k])
		}
		return n
	case TProc:
		n := 1 + NodeCount(v.Return)
		for _, p := range v.Params {
			n += NodeCount(p.Type)
		}
		return n
	case TNominal:
		return 1 + sumNodeCounts(v.Args)
	default:
		return 1
	}
}

func sumNodeCounts(types []Type) int {
	n := 0
	for _, t := range types {
		n += NodeCount(t)
	}
	return n
}
