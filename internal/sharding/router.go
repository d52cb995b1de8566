package sharding

import (
	"strings"

	"github.com/ecodeclub/ekit/slice"
	"github.com/pkg/errors"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	shardingerrs "github.com/meoying/dbkernel/internal/sharding/internal/errs"
	"github.com/meoying/dbkernel/internal/statement"
)

// Route 计算分片表和广播表的路由单元。
// 前面的规则已经产生路由结果的时候，两者取交集
func (r *Rule) Route(req *rule.RouteRequest, current *route.Context) (*route.Context, error) {
	stmt := req.Statement
	sharded, broadcast := r.managedTables(stmt.TableNames())
	if len(sharded) == 0 && len(broadcast) == 0 {
		return current, nil
	}
	var (
		res *route.Context
		err error
	)
	switch {
	case stmt.Kind == statement.KindDAL:
		res, err = r.routeDAL(req, sharded, broadcast)
	case stmt.Kind == statement.KindInsert && stmt.Insert != nil && len(sharded) > 0:
		res, err = r.routeInsert(req, sharded[0])
	case len(sharded) > 0:
		res, err = r.routeSharded(req, sharded)
	default:
		res, err = r.routeBroadcast(req, broadcast)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "分片规则 %s", r.name)
	}
	if len(sharded) > 0 && len(broadcast) > 0 {
		res = withIdentityTables(res, broadcast)
	}
	if current.IsEmpty() {
		return res, nil
	}
	merged := route.Intersect(current, res)
	if merged.IsEmpty() {
		return nil, errs.NewNoRouteTargetError(strings.Join(stmt.TableNames(), ","))
	}
	return merged, nil
}

// routeDAL 例如 DESCRIBE t_order，只需要发到第一个数据节点上
func (r *Rule) routeDAL(req *rule.RouteRequest, sharded []*TableRule, broadcast []string) (*route.Context, error) {
	b := route.NewBuilder()
	if len(sharded) > 0 {
		tr := sharded[0]
		n := tr.DataNodes[0]
		return b.AddUnit(route.NewUnit(route.Identity(n.DataSource), route.Mapper{
			LogicName: tr.LogicTable, ActualName: n.Table,
		})).Build(), nil
	}
	ds, err := r.broadcastDataSources(req, broadcast)
	if err != nil {
		return nil, err
	}
	return b.AddUnit(route.NewUnit(route.Identity(ds[0]), identityMappers(broadcast)...)).Build(), nil
}

// routeBroadcast 查询只需要一个数据源，其余语句要发到所有数据源
func (r *Rule) routeBroadcast(req *rule.RouteRequest, broadcast []string) (*route.Context, error) {
	b := route.NewBuilder()
	ds, err := r.broadcastDataSources(req, broadcast)
	if err != nil {
		return nil, err
	}
	if req.Statement.Kind == statement.KindSelect {
		ds = ds[:1]
	}
	for _, d := range ds {
		b.AddUnit(route.NewUnit(route.Identity(d), identityMappers(broadcast)...))
	}
	return b.Build(), nil
}

func (r *Rule) broadcastDataSources(req *rule.RouteRequest, broadcast []string) ([]string, error) {
	ds := req.DataSources
	if len(ds) == 0 {
		ds = r.dataSources
	}
	if len(ds) == 0 {
		return nil, errs.NewNoRouteTargetError(strings.Join(broadcast, ","))
	}
	return ds, nil
}

func identityMappers(tables []string) []route.Mapper {
	return slice.Map(tables, func(idx int, src string) route.Mapper {
		return route.Identity(src)
	})
}

func withIdentityTables(c *route.Context, tables []string) *route.Context {
	b := c.ToBuilder()
	units := b.Units()
	for i := range units {
		units[i].Tables = append(units[i].Tables, identityMappers(tables)...)
	}
	return b.Build()
}

// routeSharded 第一张分片表是主表，和它绑定的表直接使用相同下标的真实表，
// 其余的表单独计算，再在同一个数据源内做笛卡尔积
func (r *Rule) routeSharded(req *rule.RouteRequest, sharded []*TableRule) (*route.Context, error) {
	primary := sharded[0]
	nodes, err := r.routeTable(req, primary)
	if err != nil {
		return nil, err
	}
	combos := slice.Map(nodes, func(idx int, src route.DataNode) combination {
		return combination{
			ds:     src.DataSource,
			tables: []route.Mapper{{LogicName: primary.LogicTable, ActualName: src.Table}},
		}
	})
	for _, tr := range sharded[1:] {
		if r.IsBinding(primary.LogicTable, tr.LogicTable) {
			if combos, err = bind(combos, primary, tr); err != nil {
				return nil, err
			}
			continue
		}
		trNodes, err := r.routeTable(req, tr)
		if err != nil {
			return nil, err
		}
		combos = cartesian(combos, tr, trNodes)
		if len(combos) == 0 {
			return nil, errs.NewNoRouteTargetError(tr.LogicTable)
		}
	}
	b := route.NewBuilder()
	for _, c := range combos {
		b.AddUnit(route.NewUnit(route.Identity(c.ds), c.tables...))
	}
	return b.Build(), nil
}

type combination struct {
	ds     string
	tables []route.Mapper
}

func bind(combos []combination, primary, tr *TableRule) ([]combination, error) {
	res := make([]combination, 0, len(combos))
	for _, c := range combos {
		primaryTables := primary.ActualTables(c.ds)
		tables := tr.ActualTables(c.ds)
		if len(primaryTables) != len(tables) {
			return nil, shardingerrs.NewBindingTableError(primary.LogicTable, tr.LogicTable, c.ds)
		}
		idx := slice.Index(primaryTables, c.tables[0].ActualName)
		res = append(res, combination{
			ds:     c.ds,
			tables: append(c.tables, route.Mapper{LogicName: tr.LogicTable, ActualName: tables[idx]}),
		})
	}
	return res, nil
}

func cartesian(combos []combination, tr *TableRule, nodes []route.DataNode) []combination {
	res := make([]combination, 0, len(combos))
	for _, c := range combos {
		for _, n := range nodes {
			if !strings.EqualFold(n.DataSource, c.ds) {
				continue
			}
			tables := make([]route.Mapper, 0, len(c.tables)+1)
			tables = append(tables, c.tables...)
			res = append(res, combination{
				ds:     c.ds,
				tables: append(tables, route.Mapper{LogicName: tr.LogicTable, ActualName: n.Table}),
			})
		}
	}
	return res
}

// routeTable 每一个 OR 分支单独计算，结果取并集
func (r *Rule) routeTable(req *rule.RouteRequest, tr *TableRule) ([]route.DataNode, error) {
	groups, err := extractConditions(req.Statement, tr.LogicTable, tr.ShardingColumns(), req.Params)
	if err != nil {
		return nil, err
	}
	var res []route.DataNode
	for _, g := range groups {
		nodes, err := r.routeByValues(req.Statement, tr, g)
		if err != nil {
			return nil, err
		}
		res = slice.UnionSetFunc(res, nodes, func(src, dst route.DataNode) bool {
			return src.Equal(dst)
		})
	}
	if len(res) == 0 {
		return nil, errs.NewNoRouteTargetError(tr.LogicTable)
	}
	tr.sortNodes(res)
	return res, nil
}

// routeByValues 先分库，再在命中的库里面分表
func (r *Rule) routeByValues(stmt *statement.Statement, tr *TableRule, values conditionValues) ([]route.DataNode, error) {
	dsList, err := tr.databaseStrategy.shard(tr.dataSources, tr.LogicTable, values,
		hintValues(stmt.Hint.ShardingDatabaseValues, tr.LogicTable))
	if err != nil {
		return nil, err
	}
	tableHint := hintValues(stmt.Hint.ShardingTableValues, tr.LogicTable)
	var res []route.DataNode
	for _, ds := range dsList {
		tables, err := tr.tableStrategy.shard(tr.ActualTables(ds), tr.LogicTable, values, tableHint)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			res = append(res, route.DataNode{DataSource: ds, Table: t})
		}
	}
	return res, nil
}

func hintValues(hints map[string][]any, table string) []any {
	for k, v := range hints {
		if strings.EqualFold(k, table) {
			return v
		}
	}
	return nil
}

// routeInsert 每一行数据单独路由，并且必须落到唯一的数据节点上。
// 缺少自增主键列的时候在这里生成，改写的时候使用同一份值
func (r *Rule) routeInsert(req *rule.RouteRequest, tr *TableRule) (*route.Context, error) {
	insert := req.Statement.Insert
	b := route.NewBuilder()
	var generated *generatedColumn
	if tr.keyGenerator != nil && insert.ColumnIndex(tr.keyGenerateColumn) < 0 {
		generated = &generatedColumn{column: strings.ToLower(tr.keyGenerateColumn)}
		for range insert.Rows {
			v, err := tr.keyGenerator.Generate()
			if err != nil {
				return nil, err
			}
			generated.values = append(generated.values, v)
		}
		b.SetGeneratedKey(&route.GeneratedKey{Column: tr.keyGenerateColumn, Values: generated.values})
	}
	original := make([][]route.DataNode, 0, len(insert.Rows))
	var all []route.DataNode
	for i := range insert.Rows {
		values, err := insertRowValues(insert, i, tr.ShardingColumns(), req.Params, generated)
		if err != nil {
			return nil, err
		}
		nodes, err := r.routeByValues(req.Statement, tr, values)
		if err != nil {
			return nil, err
		}
		switch len(nodes) {
		case 0:
			return nil, errs.NewNoRouteTargetError(tr.LogicTable)
		case 1:
		default:
			return nil, shardingerrs.NewInsertMultipleDataNodesError(tr.LogicTable, i,
				slice.Map(nodes, func(idx int, src route.DataNode) string { return src.String() }))
		}
		original = append(original, nodes)
		all = slice.UnionSetFunc(all, nodes, func(src, dst route.DataNode) bool {
			return src.Equal(dst)
		})
	}
	tr.sortNodes(all)
	for _, n := range all {
		b.AddUnit(route.NewUnit(route.Identity(n.DataSource), route.Mapper{LogicName: tr.LogicTable, ActualName: n.Table}))
	}
	return b.SetOriginalDataNodes(original).Build(), nil
}
