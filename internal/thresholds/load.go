package thresholds

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/02loveslollipop/eco-monitor/internal/models"
)

type fileTable struct {
	Thresholds map[string]Bounds `yaml:"thresholds"`
}

// Load reads a YAML override of the form
//
//	thresholds:
//	  PM2.5: {warning: 25, alert: 35, emergency: 75}
//
// Entries replace the defaults per pollutant; pollutants not mentioned keep
// their default bounds. An empty path returns the defaults.
func Load(path string) (Table, error) {
	table := Default()
	if path == "" {
		return table, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read thresholds file: %w", err)
	}
	return parse(b, table)
}

func parse(b []byte, table Table) (Table, error) {
	var ft fileTable
	if err := yaml.Unmarshal(b, &ft); err != nil {
		return nil, fmt.Errorf("parse thresholds file: %w", err)
	}
	for name, bounds := range ft.Thresholds {
		p, err := models.ParsePollutant(name)
		if err != nil {
			return nil, fmt.Errorf("thresholds: %w", err)
		}
		if err := bounds.validate(); err != nil {
			return nil, fmt.Errorf("thresholds %s: %w", name, err)
		}
		table[p] = bounds
	}
	return table, nil
}
