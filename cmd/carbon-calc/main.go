// Command carbon-calc prices a single activity from the command line.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/rshade/ecohabit/internal/carbon"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "[carbon-calc] Error: %v\n", err)
		os.Exit(1)
	}
}

type jsonOutput struct {
	carbon.ImpactBreakdown
	Formatted     string               `json:"formatted"`
	Description   string               `json:"description"`
	Equivalencies []carbon.Equivalency `json:"equivalencies,omitempty"`
}

func run(args []string, stdout, stderr io.Writer) error {
	config, err := parseConfig(args, stderr)
	if err != nil {
		return err
	}

	table, err := carbon.LoadFactorTableFile(config.FactorsFile)
	if err != nil {
		return err
	}
	calc, err := carbon.NewCalculator(table)
	if err != nil {
		return err
	}

	entry := carbon.ActivityEntry{
		Category: carbon.Category(config.Category),
		Value:    config.Value,
		Unit:     config.Unit,
		Mode:     carbon.TransportMode(config.Mode),
		Type:     carbon.ConsumptionType(config.Type),
	}
	if entry.Unit == "" {
		entry.Unit = defaultUnit(entry.Category)
	}

	b := calc.Breakdown(entry)
	if config.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonOutput{
			ImpactBreakdown: b,
			Formatted:       carbon.FormatImpact(b.ImpactKg),
			Description:     carbon.DescribeEntry(entry),
			Equivalencies:   carbon.Equivalencies(b.ImpactKg),
		})
	}

	if _, err := fmt.Fprintf(stdout, "%s: %s\n", carbon.DescribeEntry(entry), carbon.FormatImpact(b.ImpactKg)); err != nil {
		return err
	}
	if b.CategoryFallback {
		if _, err := fmt.Fprintf(stdout, "(no factors for %q, used fallback %.2f kg/unit)\n", entry.Category, b.Factor); err != nil {
			return err
		}
	}
	if text := carbon.EquivalencyText(b.ImpactKg); text != "" {
		if _, err := fmt.Fprintln(stdout, text); err != nil {
			return err
		}
	}
	return nil
}

func defaultUnit(category carbon.Category) string {
	switch category {
	case carbon.CategoryElectricity:
		return carbon.UnitKWh
	case carbon.CategoryTransport:
		return carbon.UnitKm
	case carbon.CategoryConsumption:
		return carbon.UnitItems
	default:
		return ""
	}
}
