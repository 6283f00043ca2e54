package main

import (
	"flag"
	"io"
)

// Config holds the command-line settings for one calculation.
type Config struct {
	Category    string
	Value       float64
	Unit        string
	Mode        string
	Type        string
	FactorsFile string
	JSON        bool
}

func parseConfig(args []string, stderr io.Writer) (*Config, error) {
	config := &Config{}

	fs := flag.NewFlagSet("carbon-calc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&config.Category, "category", "electricity", "Activity category (electricity, transport, consumption or any other)")
	fs.Float64Var(&config.Value, "value", 0, "Activity magnitude (kWh, distance or item count)")
	fs.StringVar(&config.Unit, "unit", "", "Unit of -value; defaults to kWh, km or items by category")
	fs.StringVar(&config.Mode, "mode", "", "Transport mode (car, bus, train)")
	fs.StringVar(&config.Type, "type", "", "Consumption type (plastic, meat, water)")
	fs.StringVar(&config.FactorsFile, "factors", "", "YAML file overriding the built-in emission factors")
	fs.BoolVar(&config.JSON, "json", false, "Print the factor breakdown as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config, nil
}
