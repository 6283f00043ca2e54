package carbon

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// factorFile is the YAML layout of a factor override file:
//
//	fallback: 0.1
//	categories:
//	  transport:
//	    factors:
//	      ebike: 0.01
//	  heating:
//	    factor: 0.18
type factorFile struct {
	Fallback   *float64                        `yaml:"fallback"`
	Categories map[string]categoryFactorsFile `yaml:"categories"`
}

type categoryFactorsFile struct {
	Factor        *float64           `yaml:"factor"`
	Selector      *string            `yaml:"selector"`
	Default       *string            `yaml:"default"`
	DistanceBased *bool              `yaml:"distance_based"`
	Factors       map[string]float64 `yaml:"factors"`
}

// LoadFactorTable reads YAML overrides from r and merges them over the
// default table. Categories in the file that are not built in are registered.
// The merged table is validated before it is returned.
func LoadFactorTable(r io.Reader) (FactorTable, error) {
	var file factorFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return FactorTable{}, fmt.Errorf("decode factor file: %w", err)
	}

	table := DefaultFactorTable()
	log := getLogger()

	if file.Fallback != nil {
		table.Fallback = *file.Fallback
	}

	for name, override := range file.Categories {
		cat := Category(name)
		cf, existed := table.Categories[cat]
		cf = cf.clone()

		if override.Factor != nil {
			cf.Factor = *override.Factor
		}
		if override.Selector != nil {
			cf.Selector = Selector(*override.Selector)
		}
		if override.Default != nil {
			cf.DefaultSubKey = *override.Default
		}
		if override.DistanceBased != nil {
			cf.DistanceBased = *override.DistanceBased
		}
		if len(override.Factors) > 0 {
			if cf.SubFactors == nil {
				cf.SubFactors = make(map[string]float64, len(override.Factors))
			}
			for key, f := range override.Factors {
				cf.SubFactors[key] = f
			}
		}

		if err := table.RegisterCategory(cat, cf); err != nil {
			return FactorTable{}, fmt.Errorf("category %s: %w", name, err)
		}

		if existed {
			log.Debug().Str("category", name).Msg("overriding built-in emission factors")
		} else {
			log.Info().Str("category", name).Msg("registered emission factor category")
		}
	}

	if err := table.Validate(); err != nil {
		return FactorTable{}, err
	}
	return table, nil
}

// LoadFactorTableFile reads factor overrides from a YAML file.
// An empty path returns the default table.
func LoadFactorTableFile(path string) (table FactorTable, err error) {
	if path == "" {
		return DefaultFactorTable(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return FactorTable{}, fmt.Errorf("open factor file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing factor file: %w", cerr)
		}
	}()
	return LoadFactorTable(f)
}
