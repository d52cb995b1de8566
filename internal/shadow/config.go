package shadow

import (
	"github.com/meoying/dbkernel/internal/algorithm"
)

type RuleConfiguration struct {
	// DataSources 影子数据源名到生产库和影子库的映射
	DataSources map[string]DataSourceConfiguration `yaml:"dataSources" toml:"dataSources"`
	Tables      map[string]TableConfiguration      `yaml:"tables,omitempty" toml:"tables"`
	// DefaultShadowAlgorithmName 只能是 hint 类型的算法，
	// 语句中没有任何影子表的时候使用
	DefaultShadowAlgorithmName string                             `yaml:"defaultShadowAlgorithmName,omitempty" toml:"defaultShadowAlgorithmName"`
	ShadowAlgorithms           map[string]algorithm.Configuration `yaml:"shadowAlgorithms,omitempty" toml:"shadowAlgorithms"`
}

type DataSourceConfiguration struct {
	ProductionDataSourceName string `yaml:"productionDataSourceName" toml:"productionDataSourceName"`
	ShadowDataSourceName     string `yaml:"shadowDataSourceName" toml:"shadowDataSourceName"`
}

type TableConfiguration struct {
	DataSourceNames      []string `yaml:"dataSourceNames" toml:"dataSourceNames"`
	ShadowAlgorithmNames []string `yaml:"shadowAlgorithmNames" toml:"shadowAlgorithmNames"`
}
