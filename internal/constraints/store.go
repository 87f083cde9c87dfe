// Package constraints implements the per-unknown bound store the
// subtyping checker writes into, and the solver that turns an
// accumulated set of bounds into a closed substitution.
package constraints

import (
	"fmt"

	"github.com/sigcheck/sigcheck/internal/types"
)

// InvariantViolation signals a programmer bug in store bookkeeping: an
// occurrence of a still-free unknown survived elimination. The code
// worker (checkworker.CheckFile) reports it as an unsatisfiable_constraint
// diagnostic on the checked token; it is not sent as a window/showMessage.
type InvariantViolation struct {
	Unknown string
	Detail  string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("constraint store invariant violated for %q: %s", e.Unknown, e.Detail)
}

// Store holds, for each unknown the solver is allowed to bind, a pair of
// lower/upper bound sets, plus the set of rigid variables that must never
// be bound.
type Store struct {
	unknowns map[string]bool
	vars     map[string]bool
	lower    map[string][]types.Type
	upper    map[string][]types.Type
}

// New returns an empty store over the given unknowns and rigid
// variables. The two sets must be disjoint (invariant #1).
func New(unknowns, vars []string) (*Store, error) {
	s := &Store{
		unknowns: map[string]bool{},
		vars:     map[string]bool{},
		lower:    map[string][]types.Type{},
		upper:    map[string][]types.Type{},
	}
	for _, u := range unknowns {
		s.unknowns[u] = true
	}
	for _, v := range vars {
		if s.unknowns[v] {
			return nil, &InvariantViolation{Unknown: v, Detail: "appears in both unknowns and vars"}
		}
		s.vars[v] = true
	}
	return s, nil
}

// IsUnknown reports whether name is a bindable unknown in this store.
func (s *Store) IsUnknown(name string) bool {
	return s.unknowns[name]
}

// IsRigid reports whether name is a rigid (non-bindable) free variable.
func (s *Store) IsRigid(name string) bool {
	return s.vars[name]
}

// Unknowns returns the set of unknown names, order unspecified.
func (s *Store) Unknowns() []string {
	out := make([]string, 0, len(s.unknowns))
	for u := range s.unknowns {
		out = append(out, u)
	}
	return out
}

// AddLower records sub as a lower bound of the unknown v.
func (s *Store) AddLower(v string, sub types.Type) error {
	return s.add(v, &sub, nil)
}

// AddUpper records sup as an upper bound of the unknown v.
func (s *Store) AddUpper(v string, sup types.Type) error {
	return s.add(v, nil, &sup)
}

// add implements the add(v, sub?, sup?) operation from the spec: coerce a
// bound that is itself a Logic type to the Bool nominal, eliminate other
// unknowns and rigid variables from the bound before storing it, drop
// trivial bounds, and verify the no-free-unknowns invariant.
func (s *Store) add(v string, sub, sup *types.Type) error {
	if !s.unknowns[v] {
		return &InvariantViolation{Unknown: v, Detail: "add called on a name that is not a registered unknown"}
	}
	if sub != nil {
		if l, ok := (*sub).(types.TLogic); ok {
			*sub = types.TNominal{Name: "Bool", Loc: l.Loc}
		}
		eliminated := s.eliminate(*sub, false)
		if _, isBot := eliminated.(types.TBot); isBot {
			return nil
		}
		if err := s.checkNoFreeUnknowns(v, eliminated); err != nil {
			return err
		}
		s.lower[v] = append(s.lower[v], eliminated)
	}
	if sup != nil {
		if l, ok := (*sup).(types.TLogic); ok {
			*sup = types.TNominal{Name: "Bool", Loc: l.Loc}
		}
		eliminated := s.eliminate(*sup, true)
		if _, isTop := eliminated.(types.TTop); isTop {
			return nil
		}
		if err := s.checkNoFreeUnknowns(v, eliminated); err != nil {
			return err
		}
		s.upper[v] = append(s.upper[v], eliminated)
	}
	return nil
}

// eliminate replaces, within t, every occurrence of another unknown with
// Top (when t will become an upper bound) or Bot (when t will become a
// lower bound), and every occurrence of a rigid variable with Any. This
// keeps the stored bound monotone in the unknown it bounds and guarantees
// any nested store built from it has strictly fewer unknowns.
func (s *Store) eliminate(t types.Type, upperPosition bool) types.Type {
	subst := types.Subst{}
	for _, fv := range t.FreeTypeVariables() {
		switch {
		case s.vars[fv.Name]:
			subst[fv.Name] = types.TAny{}
		case s.unknowns[fv.Name]:
			if upperPosition {
				subst[fv.Name] = types.TTop{}
			} else {
				subst[fv.Name] = types.TBot{}
			}
		}
	}
	if len(subst) == 0 {
		return t
	}
	return t.Apply(subst)
}

func (s *Store) checkNoFreeUnknowns(v string, t types.Type) error {
	for _, fv := range t.FreeTypeVariables() {
		if s.unknowns[fv.Name] {
			return &InvariantViolation{Unknown: v, Detail: fmt.Sprintf("bound %s still contains free unknown %s after elimination", t, fv.Name)}
		}
	}
	return nil
}

// Lower returns the union of v's recorded lower bounds, or Bot if none.
func (s *Store) Lower(v string) types.Type {
	return types.NormalizeUnion(s.lower[v])
}

// Upper returns the intersection of v's recorded upper bounds, or Top if
// none.
func (s *Store) Upper(v string) types.Type {
	return types.NormalizeIntersection(s.upper[v])
}

// Empty reports whether the store has no bounds recorded for any unknown.
func (s *Store) Empty() bool {
	for _, bounds := range s.lower {
		if len(bounds) > 0 {
			return false
		}
	}
	for _, bounds := range s.upper {
		if len(bounds) > 0 {
			return false
		}
	}
	return true
}

// Each calls f once per unknown with its current lower/upper bounds.
func (s *Store) Each(f func(v string, lower, upper types.Type)) {
	for v := range s.unknowns {
		f(v, s.Lower(v), s.Upper(v))
	}
}

func (s *Store) String() string {
	out := ""
	for v := range s.unknowns {
		out += fmt.Sprintf("%s >= %s, %s <= %s\n", v, s.Lower(v), v, s.Upper(v))
	}
	return out
}
