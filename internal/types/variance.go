package types

// Variance is the polarity of a nominal type's argument position, which
// controls the direction of recursive subtype checks against that
// position.
type Variance int

const (
	Invariant Variance = iota
	Covariant
	Contravariant
)

func (v Variance) String() string {
	switch v {
	case Covariant:
		return "+"
	case Contravariant:
		return "-"
	default:
		return "="
	}
}

// Shape is the registered arity and per-argument variance of a nominal
// type constructor. Its length is the constructor's arity.
type Shape []Variance

// Registry holds the variance shape of every known nominal type
// constructor, populated once per process from loaded signatures. It is
// the Go port's analogue of funxy's builtin-kind table, restricted to
// first-order nominal constructors: the spec's subtyping rules only ever
// need to know a parameter's variance, never a higher-kinded shape.
type Registry struct {
	shapes  map[string]Shape
	params  map[string][]string
	superOf map[string][]TNominal
	aliasOf map[string]Type
}

// NewRegistry returns an empty registry seeded with the built-in shapes
// every signature environment is expected to carry (Array, Hash, and the
// other structural-generic standard types).
func NewRegistry() *Registry {
	r := &Registry{
		shapes:  map[string]Shape{},
		params:  map[string][]string{},
		superOf: map[string][]TNominal{},
		aliasOf: map[string]Type{},
	}
	r.shapes["Array"] = Shape{Covariant}
	r.shapes["Set"] = Shape{Covariant}
	r.shapes["Hash"] = Shape{Invariant, Covariant}
	r.shapes["Enumerable"] = Shape{Covariant}
	r.shapes["Enumerator"] = Shape{Covariant}
	r.shapes["Range"] = Shape{Covariant}
	return r
}

// DeclareShape registers (or overwrites) the variance shape of a nominal
// type constructor, e.g. from a parsed class/interface signature.
func (r *Registry) DeclareShape(name string, shape Shape) {
	r.shapes[name] = shape
}

// ShapeOf returns the registered shape of name, and whether it is known.
// VarianceAt treats an unknown constructor as invariant in every argument
// position.
func (r *Registry) ShapeOf(name string) (Shape, bool) {
	s, ok := r.shapes[name]
	return s, ok
}

// VarianceAt returns the variance of the i-th argument of a nominal type
// constructor, defaulting to Invariant when unregistered or out of range.
func (r *Registry) VarianceAt(name string, i int) Variance {
	shape, ok := r.shapes[name]
	if !ok || i < 0 || i >= len(shape) {
		return Invariant
	}
	return shape[i]
}

// DeclareSuper registers that name's direct supertype chain includes
// supers, in declaration order, for the super-chain walk in nominal
// subtyping (case 4 of the checker). formalParams names name's own type
// parameters (e.g. ["T"] for `class Box<T>`), used to instantiate
// supers' arguments against a concrete instance's own arguments.
func (r *Registry) DeclareSuper(name string, formalParams []string, supers ...TNominal) {
	r.params[name] = formalParams
	r.superOf[name] = append(r.superOf[name], supers...)
}

// FormalParams returns the declared type-parameter names of a nominal
// constructor, in declaration order.
func (r *Registry) FormalParams(name string) []string {
	return r.params[name]
}

// SuperTypes returns the direct supertypes declared for a nominal name.
func (r *Registry) SuperTypes(name string) []TNominal {
	return r.superOf[name]
}

// DeclareAlias registers name as an alias resolving to underlying.
func (r *Registry) DeclareAlias(name string, underlying Type) {
	r.aliasOf[name] = underlying
}

// ResolveAlias returns the type a TNominal alias resolves to, and whether
// n.Name is a registered alias.
func (r *Registry) ResolveAlias(n TNominal) (Type, bool) {
	t, ok := r.aliasOf[n.Name]
	return t, ok
}

// Environment is the read-only view of a registry the subtyping checker
// needs: the super-chain and alias resolution for nominal types. It is
// populated once from loaded signatures and never mutated concurrently
// with a check, matching the "no global state ... per-process immutable
// registry" guidance carried over from the source.
type Environment interface {
	SuperTypes(name string) []TNominal
	ResolveAlias(TNominal) (Type, bool)
	VarianceAt(name string, i int) Variance
	FormalParams(name string) []string
}

var _ Environment = (*Registry)(nil)
