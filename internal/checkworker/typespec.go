// Package checkworker is the worker-side runtime: it loads the signature
// environment, and — for code workers — type-checks the files assigned
// to it by running the subtyping checker and constraint solver over a
// per-file fact sheet (the already-typed AST the master's data flow
// assumes some other front end produces; see the module's non-goals).
package checkworker

import (
	"fmt"

	"github.com/sigcheck/sigcheck/internal/types"
)

// TypeSpec is the YAML-literal grammar for a types.Type, used both by
// signature files (declaring nominal shapes) and by a file's fact sheet
// (declaring the relations to check).
type TypeSpec struct {
	Kind string `yaml:"kind"`

	// Var
	Name string `yaml:"name,omitempty"`

	// Nominal
	NominalKind string     `yaml:"nominal_kind,omitempty"`
	Args        []TypeSpec `yaml:"args,omitempty"`

	// Union / Intersection / Tuple
	Types    []TypeSpec `yaml:"types,omitempty"`
	Elements []TypeSpec `yaml:"elements,omitempty"`

	// Record
	Fields map[string]TypeSpec `yaml:"fields,omitempty"`

	// Proc
	Params []ParamSpec `yaml:"params,omitempty"`
	Return *TypeSpec   `yaml:"return,omitempty"`

	// Logic
	Mode string `yaml:"mode,omitempty"`
}

// ParamSpec is one Proc parameter in the YAML grammar.
type ParamSpec struct {
	Name string   `yaml:"name"`
	Type TypeSpec `yaml:"type"`
}

// ToType converts a TypeSpec into a types.Type, attaching loc to every
// constructed node.
func (s TypeSpec) ToType(loc *types.SourceLocation) (types.Type, error) {
	switch s.Kind {
	case "var":
		return types.TVar{Name: s.Name, Loc: loc}, nil
	case "top":
		return types.TTop{Loc: loc}, nil
	case "bot":
		return types.TBot{Loc: loc}, nil
	case "any":
		return types.TAny{Loc: loc}, nil
	case "nominal":
		kind, err := parseNominalKind(s.NominalKind)
		if err != nil {
			return nil, err
		}
		args := make([]types.Type, 0, len(s.Args))
		for _, a := range s.Args {
			t, err := a.ToType(loc)
			if err != nil {
				return nil, err
			}
			args = append(args, t)
		}
		return types.TNominal{Kind: kind, Name: s.Name, Args: args, Loc: loc}, nil
	case "union":
		ts, err := toTypes(s.Types, loc)
		if err != nil {
			return nil, err
		}
		return types.TUnion{Types: ts, Loc: loc}, nil
	case "intersection":
		ts, err := toTypes(s.Types, loc)
		if err != nil {
			return nil, err
		}
		return types.TIntersection{Types: ts, Loc: loc}, nil
	case "tuple":
		ts, err := toTypes(s.Elements, loc)
		if err != nil {
			return nil, err
		}
		return types.TTuple{Elements: ts, Loc: loc}, nil
	case "record":
		fields := make(map[string]types.Type, len(s.Fields))
		for k, v := range s.Fields {
			t, err := v.ToType(loc)
			if err != nil {
				return nil, err
			}
			fields[k] = t
		}
		return types.TRecord{Fields: fields, Loc: loc}, nil
	case "proc":
		params := make([]types.Param, 0, len(s.Params))
		for _, p := range s.Params {
			t, err := p.Type.ToType(loc)
			if err != nil {
				return nil, err
			}
			params = append(params, types.Param{Name: p.Name, Type: t})
		}
		var ret types.Type = types.TAny{Loc: loc}
		if s.Return != nil {
			t, err := s.Return.ToType(loc)
			if err != nil {
				return nil, err
			}
			ret = t
		}
		return types.TProc{Params: params, Return: ret, Loc: loc}, nil
	case "logic":
		mode, err := parseLogicMode(s.Mode)
		if err != nil {
			return nil, err
		}
		return types.TLogic{Mode: mode, Loc: loc}, nil
	default:
		return nil, fmt.Errorf("checkworker: unknown type kind %q", s.Kind)
	}
}

func toTypes(specs []TypeSpec, loc *types.SourceLocation) ([]types.Type, error) {
	out := make([]types.Type, 0, len(specs))
	for _, s := range specs {
		t, err := s.ToType(loc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseNominalKind(s string) (types.NominalKind, error) {
	switch s {
	case "", "instance":
		return types.Instance, nil
	case "class":
		return types.Class, nil
	case "alias":
		return types.Alias, nil
	case "interface":
		return types.Interface, nil
	default:
		return 0, fmt.Errorf("checkworker: unknown nominal kind %q", s)
	}
}

func parseLogicMode(s string) (types.LogicMode, error) {
	switch s {
	case "", "truthy":
		return types.Truthy, nil
	case "falsy":
		return types.Falsy, nil
	case "envelope":
		return types.Envelope, nil
	default:
		return 0, fmt.Errorf("checkworker: unknown logic mode %q", s)
	}
}
