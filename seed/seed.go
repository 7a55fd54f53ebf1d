// Package seed loads the onboarding roster and shift catalog from YAML.
//
// Example:
//
//	shifts: [早番, 中番, 遅番]
//	employees:
//	  - id: E0001
//	    name: 山田 太郎
//	    team: A
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warp/point-ledger/ledger"
)

type File struct {
	Shifts    []string   `yaml:"shifts"`
	Employees []Employee `yaml:"employees"`
}

type Employee struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Team string `yaml:"team"`
}

// Load reads a seed file. An empty path yields an empty seed, which still
// installs the default shifts on a fresh database.
func Load(path string) (ledger.Seed, error) {
	if path == "" {
		return ledger.Seed{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ledger.Seed{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (ledger.Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return ledger.Seed{}, fmt.Errorf("failed to parse seed: %w", err)
	}

	s := ledger.Seed{Shifts: f.Shifts}
	for _, e := range f.Employees {
		s.Employees = append(s.Employees, ledger.Employee{
			ID:   ledger.EmployeeID(e.ID),
			Name: e.Name,
			Team: e.Team,
		})
	}
	return s, nil
}
