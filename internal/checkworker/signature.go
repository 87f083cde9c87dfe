package checkworker

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sigcheck/sigcheck/internal/types"
)

// SignatureFile is one YAML signature file's contents: nominal shapes,
// super-chains, aliases, and the declared types of top-level symbols
// (methods, constants) that checking compares expressions against.
type SignatureFile struct {
	Shapes  map[string][]string      `yaml:"shapes,omitempty"`
	Supers  []SuperDecl               `yaml:"supers,omitempty"`
	Aliases map[string]TypeSpec       `yaml:"aliases,omitempty"`
	Symbols map[string]TypeSpec       `yaml:"symbols,omitempty"`
}

// SuperDecl declares one nominal constructor's direct super-chain.
type SuperDecl struct {
	Name         string     `yaml:"name"`
	FormalParams []string   `yaml:"formal_params,omitempty"`
	Supers       []TypeSpec `yaml:"supers"`
}

// Environment is the loaded signature environment a worker type-checks
// against: the nominal registry plus every declared symbol's type.
type Environment struct {
	Registry *types.Registry
	Symbols  map[string]types.Type
}

// LoadEnvironment reads every YAML file under dirs and merges them into a
// single Environment. Each worker loads its own copy independently, per
// the spec's data-flow note that workers don't share a signature process.
func LoadEnvironment(dirs []string) (*Environment, error) {
	env := &Environment{
		Registry: types.NewRegistry(),
		Symbols:  map[string]types.Type{},
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading signature dir %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := env.loadFile(path); err != nil {
				return nil, err
			}
		}
	}
	return env, nil
}

func (env *Environment) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading signature file %s: %w", path, err)
	}
	var sf SignatureFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parsing signature file %s: %w", path, err)
	}

	for name, variances := range sf.Shapes {
		shape := make(types.Shape, 0, len(variances))
		for _, v := range variances {
			variance, err := parseVariance(v)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			shape = append(shape, variance)
		}
		env.Registry.DeclareShape(name, shape)
	}

	for _, decl := range sf.Supers {
		supers := make([]types.TNominal, 0, len(decl.Supers))
		for _, s := range decl.Supers {
			t, err := s.ToType(nil)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			nominal, ok := t.(types.TNominal)
			if !ok {
				return fmt.Errorf("%s: super of %s is not nominal", path, decl.Name)
			}
			supers = append(supers, nominal)
		}
		env.Registry.DeclareSuper(decl.Name, decl.FormalParams, supers...)
	}

	for name, spec := range sf.Aliases {
		t, err := spec.ToType(nil)
		if err != nil {
			return fmt.Errorf("%s: alias %s: %w", path, name, err)
		}
		env.Registry.DeclareAlias(name, t)
	}

	for name, spec := range sf.Symbols {
		t, err := spec.ToType(nil)
		if err != nil {
			return fmt.Errorf("%s: symbol %s: %w", path, name, err)
		}
		env.Symbols[name] = t
	}
	return nil
}

func parseVariance(s string) (types.Variance, error) {
	switch s {
	case "+", "covariant":
		return types.Covariant, nil
	case "-", "contravariant":
		return types.Contravariant, nil
	case "=", "invariant", "":
		return types.Invariant, nil
	default:
		return 0, fmt.Errorf("unknown variance %q", s)
	}
}
