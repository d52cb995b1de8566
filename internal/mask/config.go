package mask

import (
	"github.com/meoying/dbkernel/internal/algorithm"
)

type RuleConfiguration struct {
	Tables         map[string]TableConfiguration      `yaml:"tables" toml:"tables"`
	MaskAlgorithms map[string]algorithm.Configuration `yaml:"maskAlgorithms" toml:"maskAlgorithms"`
}

type TableConfiguration struct {
	Columns map[string]ColumnConfiguration `yaml:"columns" toml:"columns"`
}

type ColumnConfiguration struct {
	MaskAlgorithm string `yaml:"maskAlgorithm" toml:"maskAlgorithm"`
}
