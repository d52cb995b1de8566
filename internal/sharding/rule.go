package sharding

import (
	"slices"
	"strings"

	"github.com/ecodeclub/ekit/slice"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/sharding/algorithm"
	"github.com/meoying/dbkernel/internal/sharding/inline"
)

var (
	_ rule.Router            = &Rule{}
	_ rule.Rewriter          = &Rule{}
	_ rule.ResultMerger      = &Rule{}
	_ rule.AuditChecker      = &Rule{}
	_ rule.DataNodeContainer = &Rule{}
)

// TableRule 一张逻辑表的分片规则
type TableRule struct {
	LogicTable string
	// DataNodes 按照配置中声明的顺序
	DataNodes []route.DataNode

	dataSources []string
	// tablesByDS 小写的逻辑数据源到真实表，保持声明顺序
	tablesByDS map[string][]string
	nodeIndex  map[string]int

	databaseStrategy strategy
	tableStrategy    strategy

	keyGenerateColumn string
	keyGenerator      algorithm.KeyGenerator
}

// DataSources 逻辑表分布的数据源，按照声明顺序
func (t *TableRule) DataSources() []string {
	return t.dataSources
}

// ActualTables 某个数据源上的真实表
func (t *TableRule) ActualTables(ds string) []string {
	return t.tablesByDS[strings.ToLower(ds)]
}

// ShardingColumns 分库和分表用到的所有列，小写
func (t *TableRule) ShardingColumns() []string {
	res := slices.Clone(t.databaseStrategy.columns())
	for _, c := range t.tableStrategy.columns() {
		if !slices.Contains(res, c) {
			res = append(res, c)
		}
	}
	return res
}

func (t *TableRule) isHintOnly() bool {
	_, db := t.databaseStrategy.(*hintStrategy)
	_, tb := t.tableStrategy.(*hintStrategy)
	return (db || tb) && len(t.ShardingColumns()) == 0
}

func (t *TableRule) sortNodes(nodes []route.DataNode) {
	slices.SortStableFunc(nodes, func(a, b route.DataNode) int {
		return t.nodeIndex[nodeKey(a)] - t.nodeIndex[nodeKey(b)]
	})
}

func nodeKey(n route.DataNode) string {
	return strings.ToLower(n.String())
}

// Rule 分片规则
type Rule struct {
	name   string
	tables map[string]*TableRule
	// tableNames 逻辑表，按照名字排序
	tableNames []string
	// bindingGroups 每一组都是小写的逻辑表名
	bindingGroups [][]string
	broadcast     map[string]string
	dataSources   []string
	auditors      []*auditChecker
}

// NewRule dataSources 是逻辑数据源，没有配置 actualDataNodes 的表落在第一个数据源上
func NewRule(name string, cfg RuleConfiguration, dataSources []string) (*Rule, error) {
	algorithms, err := algorithm.Registry.NewAll(cfg.ShardingAlgorithms)
	if err != nil {
		return nil, err
	}
	keyGenerators, err := algorithm.KeyGenerators.NewAll(cfg.KeyGenerators)
	if err != nil {
		return nil, err
	}
	r := &Rule{
		name:        name,
		tables:      make(map[string]*TableRule, len(cfg.Tables)),
		broadcast:   make(map[string]string, len(cfg.BroadcastTables)),
		dataSources: slices.Clone(dataSources),
	}
	for logic, tc := range cfg.Tables {
		tr, err := newTableRule(logic, tc, cfg, dataSources, algorithms, keyGenerators)
		if err != nil {
			return nil, err
		}
		r.tables[strings.ToLower(logic)] = tr
		r.tableNames = append(r.tableNames, logic)
		for _, ds := range tr.dataSources {
			if !slices.ContainsFunc(r.dataSources, func(s string) bool { return strings.EqualFold(s, ds) }) {
				r.dataSources = append(r.dataSources, ds)
			}
		}
	}
	slices.Sort(r.tableNames)
	for _, t := range cfg.BroadcastTables {
		key := strings.ToLower(strings.TrimSpace(t))
		if _, ok := r.tables[key]; ok {
			return nil, errs.NewRuleMismatchError(t, "sharding", "broadcast")
		}
		r.broadcast[key] = strings.TrimSpace(t)
	}
	if err = r.initBindingGroups(cfg.BindingTables); err != nil {
		return nil, err
	}
	if err = r.initAuditors(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

func newTableRule(logic string, tc TableRuleConfiguration, cfg RuleConfiguration, dataSources []string,
	algorithms map[string]algorithm.Algorithm, keyGenerators map[string]algorithm.KeyGenerator) (*TableRule, error) {
	tr := &TableRule{
		LogicTable: logic,
		tablesByDS: make(map[string][]string, 4),
		nodeIndex:  make(map[string]int, 8),
	}
	if tc.ActualDataNodes == "" {
		if len(dataSources) == 0 {
			return nil, errs.NewInvalidConfigError("逻辑表 %s 没有配置 actualDataNodes，也没有可用的数据源", logic)
		}
		tr.DataNodes = []route.DataNode{{DataSource: dataSources[0], Table: logic}}
	} else {
		nodes, err := inline.Expand(tc.ActualDataNodes)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			dn, err := route.ParseDataNode(n)
			if err != nil {
				return nil, err
			}
			tr.DataNodes = append(tr.DataNodes, dn)
		}
	}
	for i, n := range tr.DataNodes {
		if _, ok := tr.nodeIndex[nodeKey(n)]; ok {
			return nil, errs.NewInvalidConfigError("逻辑表 %s 的数据节点 %s 重复", logic, n)
		}
		tr.nodeIndex[nodeKey(n)] = i
		key := strings.ToLower(n.DataSource)
		if _, ok := tr.tablesByDS[key]; !ok {
			tr.dataSources = append(tr.dataSources, n.DataSource)
		}
		tr.tablesByDS[key] = append(tr.tablesByDS[key], n.Table)
	}

	var err error
	dbCfg, tableCfg := tc.DatabaseStrategy, tc.TableStrategy
	if dbCfg == nil {
		dbCfg = cfg.DefaultDatabaseStrategy
	}
	if tableCfg == nil {
		tableCfg = cfg.DefaultTableStrategy
	}
	if tr.databaseStrategy, err = newStrategy(logic, dbCfg, cfg.DefaultShardingColumn, algorithms); err != nil {
		return nil, err
	}
	if tr.tableStrategy, err = newStrategy(logic, tableCfg, cfg.DefaultShardingColumn, algorithms); err != nil {
		return nil, err
	}

	keyCfg := tc.KeyGenerateStrategy
	if keyCfg == nil {
		keyCfg = cfg.DefaultKeyGenerateStrategy
	}
	if keyCfg != nil && keyCfg.Column != "" {
		gen, ok := keyGenerators[keyCfg.KeyGeneratorName]
		if !ok {
			return nil, errs.NewInvalidConfigError("逻辑表 %s 引用的主键生成器 %s 不存在", logic, keyCfg.KeyGeneratorName)
		}
		tr.keyGenerateColumn = keyCfg.Column
		tr.keyGenerator = gen
	}
	return tr, nil
}

func (r *Rule) initBindingGroups(bindings []string) error {
	for _, b := range bindings {
		group := slice.FilterMap(strings.Split(b, ","), func(idx int, src string) (string, bool) {
			src = strings.ToLower(strings.TrimSpace(src))
			return src, src != ""
		})
		for _, t := range group {
			if _, ok := r.tables[t]; !ok {
				return errs.NewInvalidConfigError("绑定表 %s 没有配置分片规则", t)
			}
		}
		r.bindingGroups = append(r.bindingGroups, group)
	}
	return nil
}

func (*Rule) Kind() rule.Kind {
	return rule.KindSharding
}

func (r *Rule) Name() string {
	return r.name
}

// TableRule 大小写不敏感
func (r *Rule) TableRule(logicTable string) (*TableRule, bool) {
	tr, ok := r.tables[strings.ToLower(logicTable)]
	return tr, ok
}

func (r *Rule) IsBroadcast(logicTable string) bool {
	_, ok := r.broadcast[strings.ToLower(logicTable)]
	return ok
}

// IsBinding 两张表是否在同一个绑定组里面
func (r *Rule) IsBinding(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	for _, g := range r.bindingGroups {
		if slice.Contains(g, a) && slice.Contains(g, b) {
			return true
		}
	}
	return false
}

func (r *Rule) TableKind(logicTable string) (rule.TableKind, bool) {
	if _, ok := r.TableRule(logicTable); ok {
		return rule.TableSharded, true
	}
	if r.IsBroadcast(logicTable) {
		return rule.TableBroadcast, true
	}
	return 0, false
}

func (r *Rule) DataNodes(logicTable string) []route.DataNode {
	if tr, ok := r.TableRule(logicTable); ok {
		return slices.Clone(tr.DataNodes)
	}
	if r.IsBroadcast(logicTable) {
		return slice.Map(r.dataSources, func(idx int, src string) route.DataNode {
			return route.DataNode{DataSource: src, Table: logicTable}
		})
	}
	return nil
}

// ShardedTables 所有的分片表，按照名字排序
func (r *Rule) ShardedTables() []string {
	return slices.Clone(r.tableNames)
}

// LogicTable 根据真实表反查逻辑表
func (r *Rule) LogicTable(actualTable string) (string, bool) {
	for _, name := range r.tableNames {
		tr := r.tables[strings.ToLower(name)]
		for _, n := range tr.DataNodes {
			if strings.EqualFold(n.Table, actualTable) {
				return tr.LogicTable, true
			}
		}
	}
	return "", false
}

// managedTables 语句中被这个规则管理的分片表和广播表
func (r *Rule) managedTables(tables []string) (sharded []*TableRule, broadcast []string) {
	for _, t := range tables {
		if tr, ok := r.TableRule(t); ok {
			sharded = append(sharded, tr)
			continue
		}
		if r.IsBroadcast(t) {
			broadcast = append(broadcast, t)
		}
	}
	return sharded, broadcast
}
