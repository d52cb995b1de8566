package encrypt

import (
	"github.com/meoying/dbkernel/internal/algorithm"
)

type RuleConfiguration struct {
	Tables     map[string]TableConfiguration      `yaml:"tables" toml:"tables"`
	Encryptors map[string]algorithm.Configuration `yaml:"encryptors" toml:"encryptors"`
}

type TableConfiguration struct {
	// Columns 逻辑列名到加密配置
	Columns map[string]ColumnConfiguration `yaml:"columns" toml:"columns"`
}

type ColumnConfiguration struct {
	Cipher ColumnItemConfiguration `yaml:"cipher" toml:"cipher"`
	// AssistedQuery 等值查询使用的辅助列，可选
	AssistedQuery *ColumnItemConfiguration `yaml:"assistedQuery,omitempty" toml:"assistedQuery"`
	// DataType 逻辑列的类型，DESCRIBE 的时候替换掉密文列的类型
	DataType string `yaml:"dataType,omitempty" toml:"dataType"`
}

type ColumnItemConfiguration struct {
	Name          string `yaml:"name" toml:"name"`
	EncryptorName string `yaml:"encryptorName" toml:"encryptorName"`
}
