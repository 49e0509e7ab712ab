package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"billetera/internal/core"
)

// DefaultSeeds returns the categories a fresh catalog starts with.
func DefaultSeeds() []core.CategorySeed {
	return []core.CategorySeed{
		{Name: "Salario", Type: core.Income},
		{Name: "Inversiones", Type: core.Income},
		{Name: "Regalos", Type: core.Income},
		{Name: "Freelance", Type: core.Income},
		{Name: "Ahorros", Type: core.Income},
		{Name: "Otros", Type: core.Income},
		{Name: "Comida", Type: core.Expense},
		{Name: "Transporte", Type: core.Expense},
		{Name: "Entretenimiento", Type: core.Expense},
		{Name: "Servicios", Type: core.Expense},
		{Name: "Compras", Type: core.Expense},
		{Name: "Otros", Type: core.Expense},
	}
}

type seedFile struct {
	Categories []core.CategorySeed `yaml:"categories"`
}

// LoadSeeds reads a seed list from a YAML file of the form
//
//	categories:
//	  - {name: Salario, type: income}
//	  - {name: Comida, type: expense}
//
// An empty path returns DefaultSeeds.
func LoadSeeds(path string) ([]core.CategorySeed, error) {
	if path == "" {
		return DefaultSeeds(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("seed file %s: %w: no categories", path, core.ErrInvalidInput)
	}
	for i := range f.Categories {
		t, err := core.ParseTxType(string(f.Categories[i].Type))
		if err != nil {
			return nil, fmt.Errorf("seed file %s entry %d: %w", path, i, err)
		}
		f.Categories[i].Type = t
	}
	return f.Categories, nil
}
