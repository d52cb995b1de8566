package sharding

import (
	"context"
	"strings"

	"github.com/spf13/cast"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/merger/factory"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

// NewMerger 查询路由到多个单元的时候使用流式归并，SHOW TABLES 需要把真实表名换回逻辑表名
func (r *Rule) NewMerger(mc *rule.MergeContext) (merger.Merger, bool, error) {
	stmt := mc.Statement
	if stmt.Kind == statement.KindDAL && stmt.DAL == statement.DALShowTables && len(r.tables) > 0 {
		return &showTablesMerger{rule: r}, true, nil
	}
	if stmt.Kind != statement.KindSelect || mc.Route.Len() <= 1 || !r.routed(mc.Route) {
		return nil, false, nil
	}
	return &queryMerger{stmt: stmt, params: mc.Params}, true, nil
}

// queryMerger 列的数量要等拿到结果集才能确定，所以在 Merge 的时候才组装 merger
type queryMerger struct {
	stmt   *statement.Statement
	params []any
}

func (q *queryMerger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	cols, err := merger.CheckColumns(results)
	if err != nil {
		return nil, err
	}
	spec, err := q.querySpec(cols)
	if err != nil {
		return nil, err
	}
	m, err := factory.New(spec)
	if err != nil {
		return nil, err
	}
	return m.Merge(ctx, results)
}

func (q *queryMerger) querySpec(cols []string) (factory.QuerySpec, error) {
	stmt := q.stmt
	derived := derivedColumns(stmt)
	visible := len(cols) - len(derived)
	if visible <= 0 {
		return factory.QuerySpec{}, factory.ErrColumnNotFoundInSelectList
	}
	star := hasStar(stmt)
	spec := factory.QuerySpec{
		Select:   make([]merger.ColumnInfo, 0, len(cols)),
		Distinct: stmt.Distinct,
		Limit:    -1,
	}
	for i := 0; i < visible; i++ {
		c := merger.ColumnInfo{Index: i, Name: columnName(cols[i])}
		if !star && i < len(stmt.Projections) {
			p := stmt.Projections[i]
			c.Name, c.AggregateFunc, c.Alias, c.Distinct = p.Column, strings.ToUpper(p.AggregateFunc), p.Alias, p.Distinct
		}
		spec.Select = append(spec.Select, c)
	}
	for i, d := range derived {
		c := merger.ColumnInfo{Index: visible + i, Name: d.column, Alias: d.alias}
		if !star {
			c.AggregateFunc = d.fn
		}
		spec.Select = append(spec.Select, c)
		if !star && d.alias == fmtAlias(avgDerivedCount, d.index) {
			spec.AVGs = append(spec.AVGs, factory.AVGColumns{
				AVG:   spec.Select[d.index],
				Sum:   spec.Select[visible+i-1],
				Count: c,
			})
		}
	}
	var err error
	if spec.GroupBy, err = q.orderColumns(stmt.GroupBy, groupByDerived, spec.Select, cols, derived, visible); err != nil {
		return spec, err
	}
	if spec.OrderBy, err = q.orderColumns(stmt.OrderBy, orderByDerived, spec.Select, cols, derived, visible); err != nil {
		return spec, err
	}
	if len(derived) > 0 {
		spec.VisibleColumns = visible
	}
	if p := stmt.Pagination; p != nil {
		if p.Offset != nil {
			if spec.Offset, err = resolveInt(*p.Offset, q.params); err != nil {
				return spec, err
			}
		}
		if p.RowCount != nil {
			if spec.Limit, err = resolveInt(*p.RowCount, q.params); err != nil {
				return spec, err
			}
		}
	}
	return spec, nil
}

// orderColumns ORDER BY / GROUP BY 对应到结果集中的列
func (q *queryMerger) orderColumns(items []statement.OrderItem, derivedAlias string, selected []merger.ColumnInfo,
	cols []string, derived []derivedColumn, visible int) ([]merger.ColumnInfo, error) {
	res := make([]merger.ColumnInfo, 0, len(items))
	star := hasStar(q.stmt)
	for i, item := range items {
		idx := -1
		switch {
		case item.Index >= 0 && !star:
			idx = item.Index
		case !star:
			idx = derivedIndex(derived, visible, fmtAlias(derivedAlias, i), item.Column)
		default:
			idx = findColumn(cols[:visible], item.Column)
		}
		if idx < 0 || idx >= len(selected) {
			return nil, factory.ErrColumnNotFoundInSelectList
		}
		c := selected[idx]
		c.Order = merger.Order(!item.Desc)
		res = append(res, c)
	}
	return res, nil
}

func derivedIndex(derived []derivedColumn, visible int, alias, column string) int {
	for i, d := range derived {
		if d.alias == alias {
			return visible + i
		}
	}
	// ORDER BY 和 GROUP BY 使用了同一个追加列
	_, col := splitOwner(column)
	for i, d := range derived {
		if d.fn == "" && strings.EqualFold(d.column, col) {
			return visible + i
		}
	}
	return -1
}

func findColumn(cols []string, column string) int {
	_, col := splitOwner(column)
	for i, c := range cols {
		if strings.EqualFold(columnName(c), col) {
			return i
		}
	}
	return -1
}

// columnName 去掉结果集列名中可能存在的表名前缀
func columnName(c string) string {
	_, col := splitOwner(c)
	if strings.Contains(col, "(") {
		return strings.NewReplacer("(", "_", ")", "_").Replace(col)
	}
	return col
}

// showTablesMerger 每个数据源的 SHOW TABLES 结果合并，真实表名换成逻辑表名之后去重
type showTablesMerger struct {
	rule *Rule
}

func (m *showTablesMerger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	collected, err := merger.Collect(ctx, results)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(collected.Data))
	data := make([][]any, 0, len(collected.Data))
	for _, row := range collected.Data {
		if len(row) == 0 {
			continue
		}
		name := cast.ToString(row[0])
		if logic, ok := m.rule.LogicTable(name); ok {
			name = logic
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		newRow := make([]any, len(row))
		copy(newRow, row)
		newRow[0] = name
		data = append(data, newRow)
	}
	return collected.ToRows(data), nil
}
