package sharding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/rewrite/sqltoken"
	"github.com/meoying/dbkernel/internal/statement"
)

const (
	avgDerivedSum   = "AVG_DERIVED_SUM_%d"
	avgDerivedCount = "AVG_DERIVED_COUNT_%d"
	groupByDerived  = "GROUP_BY_DERIVED_%d"
	orderByDerived  = "ORDER_BY_DERIVED_%d"
)

// Rewrite 替换分片表的表名，INSERT 只保留路由到当前单元的行。
// 查询路由到多个单元的时候，还需要改写分页并且补充归并需要的列
func (r *Rule) Rewrite(rc *rule.RewriteContext) error {
	stmt := rc.Statement
	r.rewriteTables(rc)
	if stmt.Kind == statement.KindInsert && stmt.Insert != nil {
		if _, ok := r.TableRule(stmt.Insert.Table); ok {
			return r.rewriteInsert(rc)
		}
		return nil
	}
	if stmt.Kind != statement.KindSelect || rc.Route.Len() <= 1 || !r.routed(rc.Route) {
		return nil
	}
	if err := rewritePagination(rc); err != nil {
		return err
	}
	if cols := derivedColumns(stmt); len(cols) > 0 {
		last := stmt.Projections[len(stmt.Projections)-1]
		rc.Tokens.Add(&derivedColumnsToken{pos: last.Span.End, columns: cols})
	}
	return nil
}

// routed 路由结果里面有没有分片表
func (r *Rule) routed(c *route.Context) bool {
	for _, t := range c.LogicTableNames() {
		if _, ok := r.TableRule(t); ok {
			return true
		}
	}
	return false
}

func (r *Rule) rewriteTables(rc *rule.RewriteContext) {
	seen := make(map[statement.Span]struct{}, 4)
	rc.Statement.Walk(func(st *statement.Statement) {
		for _, t := range st.Tables {
			if _, ok := r.TableRule(t.Name); !ok || !rc.Route.ContainsTable(t.Name) {
				continue
			}
			for _, sp := range t.Spans {
				if _, ok := seen[sp]; ok {
					continue
				}
				seen[sp] = struct{}{}
				rc.Tokens.Add(sqltoken.NewTableToken(sp, t.Name))
			}
		}
	})
}

func (r *Rule) rewriteInsert(rc *rule.RewriteContext) error {
	values := rc.InsertValues()
	key := rc.Route.GeneratedKey()
	if key == nil || rc.Statement.Insert.ColumnIndex(key.Column) >= 0 {
		return nil
	}
	cols, err := rc.InsertColumns()
	if err != nil {
		return err
	}
	cols.Append(key.Column)
	grouped, hasGroup := rc.Grouped()
	for i, row := range values.Rows() {
		if hasGroup && hasParam(rc.Statement.Insert.Rows[i]) {
			row.Exprs = append(row.Exprs, "?")
			grouped.AddToGroup(i, key.Values[i])
			continue
		}
		row.Exprs = append(row.Exprs, sqltoken.Literal(key.Values[i]))
	}
	return nil
}

func hasParam(row statement.InsertRow) bool {
	for _, v := range row.Values {
		if v.IsParam() {
			return true
		}
	}
	return false
}

// rewritePagination LIMIT o, n 改成 LIMIT 0, o+n，归并之后再跳过 o 行
func rewritePagination(rc *rule.RewriteContext) error {
	p := rc.Statement.Pagination
	if p == nil || p.Offset == nil || p.RowCount == nil {
		return nil
	}
	offset, err := resolveInt(*p.Offset, rc.Params)
	if err != nil {
		return err
	}
	if offset == 0 {
		return nil
	}
	rowCount, err := resolveInt(*p.RowCount, rc.Params)
	if err != nil {
		return err
	}
	replaceValue(rc, *p.Offset, 0)
	replaceValue(rc, *p.RowCount, offset+rowCount)
	return nil
}

func resolveInt(v statement.Value, params []any) (int, error) {
	val, err := v.Resolve(params)
	if err != nil {
		return 0, err
	}
	return cast.ToIntE(val)
}

func replaceValue(rc *rule.RewriteContext, v statement.Value, n int) {
	if v.IsParam() {
		rc.Parameters.Replace(*v.Param, n)
		return
	}
	rc.Tokens.Add(sqltoken.NewSubstitution(v.Span, strconv.Itoa(n)))
}

// derivedColumn 为了归并追加到 SELECT 列表末尾的列
type derivedColumn struct {
	fn       string
	distinct bool
	owner    string
	column   string
	alias    string
	// projection AVG 对应的投影下标，或者 ORDER BY / GROUP BY 的下标
	index int
}

func (d derivedColumn) text(unit route.Unit) string {
	name := d.column
	if d.owner != "" {
		owner := d.owner
		if unit.HasLogicTable(owner) {
			owner = unit.ActualTableName(owner)
		}
		name = owner + "." + d.column
	}
	if d.fn != "" {
		if d.distinct {
			name = "DISTINCT " + name
		}
		name = fmt.Sprintf("%s(%s)", d.fn, name)
	}
	return name + " AS " + d.alias
}

// derivedColumns 顺序是 AVG 的 SUM 和 COUNT，然后是不在 SELECT 列表中的 GROUP BY 和 ORDER BY 列。
// 投影中有 * 的时候排序列已经在结果里面了，不需要追加
func derivedColumns(stmt *statement.Statement) []derivedColumn {
	var res []derivedColumn
	star := hasStar(stmt)
	for i, p := range stmt.Projections {
		if !strings.EqualFold(p.AggregateFunc, "AVG") {
			continue
		}
		res = append(res,
			derivedColumn{fn: "SUM", distinct: p.Distinct, owner: p.Owner, column: p.Column,
				alias: fmtAlias(avgDerivedSum, i), index: i},
			derivedColumn{fn: "COUNT", distinct: p.Distinct, owner: p.Owner, column: p.Column,
				alias: fmtAlias(avgDerivedCount, i), index: i})
	}
	if star {
		return res
	}
	for i, item := range stmt.GroupBy {
		if item.Index < 0 {
			owner, col := splitOwner(item.Column)
			res = append(res, derivedColumn{owner: owner, column: col, alias: fmtAlias(groupByDerived, i), index: i})
		}
	}
	for i, item := range stmt.OrderBy {
		if item.Index < 0 && !derivedByGroup(stmt, item.Column) {
			owner, col := splitOwner(item.Column)
			res = append(res, derivedColumn{owner: owner, column: col, alias: fmtAlias(orderByDerived, i), index: i})
		}
	}
	return res
}

// derivedByGroup ORDER BY 的列已经作为 GROUP BY 列追加过了
func derivedByGroup(stmt *statement.Statement, column string) bool {
	for _, g := range stmt.GroupBy {
		if g.Index < 0 && strings.EqualFold(g.Column, column) {
			return true
		}
	}
	return false
}

func fmtAlias(format string, i int) string {
	return fmt.Sprintf(format, i)
}

func hasStar(stmt *statement.Statement) bool {
	for _, p := range stmt.Projections {
		if p.IsStar() {
			return true
		}
	}
	return false
}

func splitOwner(column string) (string, string) {
	if idx := strings.LastIndexByte(column, '.'); idx > 0 {
		return column[:idx], column[idx+1:]
	}
	return "", column
}

// derivedColumnsToken 在最后一个投影之后插入追加的列，表名按照路由单元替换
type derivedColumnsToken struct {
	pos     int
	columns []derivedColumn
}

func (t *derivedColumnsToken) Start() int {
	return t.pos
}

func (t *derivedColumnsToken) End() int {
	return t.pos
}

func (t *derivedColumnsToken) Text(unit route.Unit) string {
	var sb strings.Builder
	for _, c := range t.columns {
		sb.WriteString(", ")
		sb.WriteString(c.text(unit))
	}
	return sb.String()
}
