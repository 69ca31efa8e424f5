package risk

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultPricePrecision int32 = 2

// PrecisionTable maps symbols to the number of decimals their price offsets
// are rounded to.
type PrecisionTable struct {
	Price   map[string]int32 `yaml:"price"`
	Default int32            `yaml:"default"`
}

// DefaultPrecisionTable returns the built-in table for the USDT-margined
// perpetuals the bot is usually run against.
func DefaultPrecisionTable() PrecisionTable {
	return PrecisionTable{
		Price: map[string]int32{
			"BTCUSDT":   1,
			"ETHUSDT":   2,
			"ADAUSDT":   4,
			"SANDUSDT":  4,
			"BNBUSDT":   2,
			"MATICUSDT": 4,
			"XRPUSDT":   4,
			"APEUSDT":   3,
			"LTCUSDT":   2,
			"LINKUSDT":  3,
		},
		Default: defaultPricePrecision,
	}
}

// PricePrecision returns the decimals for symbol, or the table default.
func (t PrecisionTable) PricePrecision(symbol string) int32 {
	if p, ok := t.Price[strings.ToUpper(symbol)]; ok {
		return p
	}
	return t.Default
}

// precisionFile is the YAML override layout. Default is a pointer so an
// explicit zero is distinguishable from an absent key.
type precisionFile struct {
	Price   map[string]int32 `yaml:"price"`
	Default *int32           `yaml:"default"`
}

// merge returns a copy of t with the entries of f layered on top.
func (t PrecisionTable) merge(f precisionFile) PrecisionTable {
	merged := PrecisionTable{Price: make(map[string]int32, len(t.Price)+len(f.Price)), Default: t.Default}
	for k, v := range t.Price {
		merged.Price[k] = v
	}
	for k, v := range f.Price {
		merged.Price[strings.ToUpper(k)] = v
	}
	if f.Default != nil {
		merged.Default = *f.Default
	}
	return merged
}

// LoadPrecisionTable reads a YAML override file and layers it over the
// built-in table. An empty path returns the built-in table.
//
//	default: 2
//	price:
//	  BTCUSDT: 1
//	  DOGEUSDT: 5
func LoadPrecisionTable(path string) (PrecisionTable, error) {
	base := DefaultPrecisionTable()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PrecisionTable{}, fmt.Errorf("failed to read precision file '%s': %w", path, err)
	}
	var override precisionFile
	if err := yaml.Unmarshal(data, &override); err != nil {
		return PrecisionTable{}, fmt.Errorf("failed to parse precision file '%s': %w", path, err)
	}
	for symbol, p := range override.Price {
		if p < 0 {
			return PrecisionTable{}, fmt.Errorf("negative precision %d for symbol %s in '%s'", p, symbol, path)
		}
	}
	if override.Default != nil && *override.Default < 0 {
		return PrecisionTable{}, fmt.Errorf("negative default precision %d in '%s'", *override.Default, path)
	}
	return base.merge(override), nil
}
