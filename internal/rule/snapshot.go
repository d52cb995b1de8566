package rule

import (
	"slices"
	"strings"

	"go.uber.org/atomic"
)

// Props 全局属性
type Props struct {
	// SQLShow 打印改写之后的 SQL
	SQLShow bool
	// CheckTableMetadata 校验同一张逻辑表下面的真实表结构是否一致
	CheckTableMetadata bool
}

// Snapshot 某一代配置生成的全部规则。请求开始的时候拿到快照，
// 之后整个请求都使用同一份，配置变更只会替换快照
type Snapshot struct {
	Generation uint64
	Rules      []Rule
	// DataSources 物理数据源，有序
	DataSources []string
	// LogicDataSources 逻辑数据源，聚合之后的名字加上没有被聚合的物理数据源
	LogicDataSources  []string
	DefaultDataSource string
	Schema            *Schema
	Props             Props
}

func NewSnapshot(rules []Rule, dataSources []string, defaultDataSource string, props Props) *Snapshot {
	s := &Snapshot{
		Rules:       rules,
		DataSources: dataSources,
		Props:       props,
		Schema:      NewSchema("logic_db", nil),
	}
	s.LogicDataSources = logicDataSources(rules, dataSources)
	s.DefaultDataSource = defaultDataSource
	if s.DefaultDataSource == "" && len(s.LogicDataSources) > 0 {
		s.DefaultDataSource = s.LogicDataSources[0]
	}
	return s
}

func logicDataSources(rules []Rule, dataSources []string) []string {
	var res []string
	members := make(map[string]struct{}, len(dataSources))
	for _, c := range Resolve[DataSourceContainer](rules) {
		aggregated := c.AggregatedDataSources()
		names := make([]string, 0, len(aggregated))
		for name := range aggregated {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			for _, m := range aggregated[name] {
				members[strings.ToLower(m)] = struct{}{}
			}
			if !slices.Contains(res, name) {
				res = append(res, name)
			}
		}
	}
	for _, ds := range dataSources {
		if _, ok := members[strings.ToLower(ds)]; ok {
			continue
		}
		if !slices.Contains(res, ds) {
			res = append(res, ds)
		}
	}
	return res
}

// Holder 持有当前生效的快照
type Holder struct {
	current    *atomic.Pointer[Snapshot]
	generation *atomic.Uint64
}

func NewHolder(s *Snapshot) *Holder {
	h := &Holder{
		current:    atomic.NewPointer[Snapshot](nil),
		generation: atomic.NewUint64(0),
	}
	h.Swap(s)
	return h
}

func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Swap 换上新的快照，返回旧的。正在处理中的请求继续使用旧的快照
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	s.Generation = h.generation.Inc()
	return h.current.Swap(s)
}

// Schema 逻辑库的元数据，表名到列名
type Schema struct {
	Name   string
	tables map[string][]string
}

func NewSchema(name string, tables map[string][]string) *Schema {
	s := &Schema{Name: name, tables: make(map[string][]string, len(tables))}
	for t, cols := range tables {
		s.tables[strings.ToLower(t)] = cols
	}
	return s
}

func (s *Schema) Columns(table string) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	cols, ok := s.tables[strings.ToLower(table)]
	return cols, ok
}

// WithTable 返回一个新的 Schema
func (s *Schema) WithTable(table string, columns []string) *Schema {
	tables := make(map[string][]string, len(s.tables)+1)
	for k, v := range s.tables {
		tables[k] = v
	}
	tables[strings.ToLower(table)] = columns
	return &Schema{Name: s.Name, tables: tables}
}
