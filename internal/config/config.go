// Package config loads the Sigcheckfile (naming signature directories,
// worker counts, and progress thresholds) and the expectations YAML file
// compared against a run's diagnostics. Both are deliberately minimal:
// a single os.ReadFile and yaml.Unmarshal, with only the required-field
// checks a complete repository needs to run end to end.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sigcheckfile is the project configuration naming where signatures live
// and how the worker pool is sized.
type Sigcheckfile struct {
	// SignatureDirs lists directories containing signature files, watched
	// for out-of-editor changes.
	SignatureDirs []string `yaml:"signature_dirs"`

	// CodeWorkers is the number of code worker processes to spawn.
	CodeWorkers int `yaml:"code_workers"`

	// ReportProgressThreshold is the minimum request.Total below which
	// workDoneProgress events are skipped entirely.
	ReportProgressThreshold int `yaml:"report_progress_threshold"`

	// ExpectationsFile optionally names a YAML file of expected
	// diagnostics in the format LoadExpectations reads. The CLI driver
	// does not load it or compare a run's diagnostics against it.
	ExpectationsFile string `yaml:"expectations_file,omitempty"`
}

// Load reads and parses a Sigcheckfile.
func Load(path string) (*Sigcheckfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg Sigcheckfile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.setDefaults()
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Sigcheckfile) setDefaults() {
	if c.CodeWorkers <= 0 {
		c.CodeWorkers = 1
	}
}

func (c *Sigcheckfile) validate(path string) error {
	if len(c.SignatureDirs) == 0 {
		return fmt.Errorf("%s: signature_dirs is required", path)
	}
	return nil
}
