package sharding

import (
	"github.com/meoying/dbkernel/internal/algorithm"
)

// RuleConfiguration 分片规则的配置
type RuleConfiguration struct {
	Tables map[string]TableRuleConfiguration `yaml:"tables" toml:"tables"`
	// BindingTables 每一项是逗号分隔的一组绑定表，例如 t_order,t_order_item
	BindingTables   []string `yaml:"bindingTables" toml:"bindingTables"`
	BroadcastTables []string `yaml:"broadcastTables" toml:"broadcastTables"`

	DefaultDatabaseStrategy    *StrategyConfiguration            `yaml:"defaultDatabaseStrategy" toml:"defaultDatabaseStrategy"`
	DefaultTableStrategy       *StrategyConfiguration            `yaml:"defaultTableStrategy" toml:"defaultTableStrategy"`
	DefaultKeyGenerateStrategy *KeyGenerateStrategyConfiguration `yaml:"defaultKeyGenerateStrategy" toml:"defaultKeyGenerateStrategy"`
	DefaultAuditStrategy       *AuditStrategyConfiguration       `yaml:"defaultAuditStrategy" toml:"defaultAuditStrategy"`
	// DefaultShardingColumn 策略没有指定分片列的时候使用
	DefaultShardingColumn string `yaml:"defaultShardingColumn" toml:"defaultShardingColumn"`

	ShardingAlgorithms map[string]algorithm.Configuration `yaml:"shardingAlgorithms" toml:"shardingAlgorithms"`
	KeyGenerators      map[string]algorithm.Configuration `yaml:"keyGenerators" toml:"keyGenerators"`
	Auditors           map[string]algorithm.Configuration `yaml:"auditors" toml:"auditors"`
}

type TableRuleConfiguration struct {
	// ActualDataNodes 行表达式，例如 ds_${0..1}.t_order_${0..1}。为空时表示逻辑表只在默认数据源上
	ActualDataNodes     string                            `yaml:"actualDataNodes" toml:"actualDataNodes"`
	DatabaseStrategy    *StrategyConfiguration            `yaml:"databaseStrategy" toml:"databaseStrategy"`
	TableStrategy       *StrategyConfiguration            `yaml:"tableStrategy" toml:"tableStrategy"`
	KeyGenerateStrategy *KeyGenerateStrategyConfiguration `yaml:"keyGenerateStrategy" toml:"keyGenerateStrategy"`
	AuditStrategy       *AuditStrategyConfiguration       `yaml:"auditStrategy" toml:"auditStrategy"`
}

// StrategyConfiguration 四选一
type StrategyConfiguration struct {
	Standard *StandardStrategyConfiguration `yaml:"standard" toml:"standard"`
	Complex  *ComplexStrategyConfiguration  `yaml:"complex" toml:"complex"`
	Hint     *HintStrategyConfiguration     `yaml:"hint" toml:"hint"`
	None     *struct{}                      `yaml:"none" toml:"none"`
}

type StandardStrategyConfiguration struct {
	ShardingColumn        string `yaml:"shardingColumn" toml:"shardingColumn"`
	ShardingAlgorithmName string `yaml:"shardingAlgorithmName" toml:"shardingAlgorithmName"`
}

type ComplexStrategyConfiguration struct {
	// ShardingColumns 逗号分隔
	ShardingColumns       string `yaml:"shardingColumns" toml:"shardingColumns"`
	ShardingAlgorithmName string `yaml:"shardingAlgorithmName" toml:"shardingAlgorithmName"`
}

type HintStrategyConfiguration struct {
	ShardingAlgorithmName string `yaml:"shardingAlgorithmName" toml:"shardingAlgorithmName"`
}

type KeyGenerateStrategyConfiguration struct {
	Column           string `yaml:"column" toml:"column"`
	KeyGeneratorName string `yaml:"keyGeneratorName" toml:"keyGeneratorName"`
}

type AuditStrategyConfiguration struct {
	AuditorNames     []string `yaml:"auditorNames" toml:"auditorNames"`
	AllowHintDisable bool     `yaml:"allowHintDisable" toml:"allowHintDisable"`
}
