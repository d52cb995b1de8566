package sqltoken

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/statement"
)

// InsertColumnsToken INSERT 的列名列表，分片和加密都会修改它
type InsertColumnsToken struct {
	span
	columns []string
}

func NewInsertColumnsToken(insert *statement.Insert) *InsertColumnsToken {
	cols := make([]string, len(insert.Columns))
	copy(cols, insert.Columns)
	return &InsertColumnsToken{
		span:    span{start: insert.ColumnsSpan.Start, end: insert.ColumnsSpan.End},
		columns: cols,
	}
}

// Rename 大小写不敏感
func (t *InsertColumnsToken) Rename(column, newName string) {
	for i, c := range t.columns {
		if strings.EqualFold(c, column) {
			t.columns[i] = newName
			return
		}
	}
}

func (t *InsertColumnsToken) Append(columns ...string) {
	t.columns = append(t.columns, columns...)
}

func (t *InsertColumnsToken) Columns() []string {
	return t.columns
}

func (t *InsertColumnsToken) Text(route.Unit) string {
	return strings.Join(t.columns, ", ")
}

// InsertValue VALUES 中的一行，以及这一行路由到的数据节点
type InsertValue struct {
	Exprs     []string
	DataNodes []route.DataNode
}

// InsertValuesToken 整个 VALUES 列表。每个路由单元只输出路由到它的那些行
type InsertValuesToken struct {
	span
	table string
	rows  []*InsertValue
}

// NewInsertValuesToken 每个值的表达式直接取原始 SQL 中的片段
func NewInsertValuesToken(sql string, insert *statement.Insert, dataNodes [][]route.DataNode) *InsertValuesToken {
	rows := make([]*InsertValue, 0, len(insert.Rows))
	for i, r := range insert.Rows {
		exprs := make([]string, 0, len(r.Values))
		for _, v := range r.Values {
			exprs = append(exprs, sql[v.Span.Start:v.Span.End])
		}
		row := &InsertValue{Exprs: exprs}
		if i < len(dataNodes) {
			row.DataNodes = dataNodes[i]
		}
		rows = append(rows, row)
	}
	return &InsertValuesToken{
		span:  span{start: insert.ValuesSpan.Start, end: insert.ValuesSpan.End},
		table: insert.Table,
		rows:  rows,
	}
}

func (t *InsertValuesToken) Rows() []*InsertValue {
	return t.rows
}

// RowsOf 路由到这个单元的行的下标，按原始顺序
func (t *InsertValuesToken) RowsOf(unit route.Unit) []int {
	res := make([]int, 0, len(t.rows))
	for i, r := range t.rows {
		if RoutedTo(r.DataNodes, unit, t.table) {
			res = append(res, i)
		}
	}
	return res
}

func (t *InsertValuesToken) Text(unit route.Unit) string {
	var sb strings.Builder
	for _, i := range t.RowsOf(unit) {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		sb.WriteString(strings.Join(t.rows[i].Exprs, ", "))
		sb.WriteByte(')')
	}
	return sb.String()
}

// RoutedTo 一行数据是否路由到了这个单元。没有数据节点的行会出现在每个单元上
func RoutedTo(nodes []route.DataNode, unit route.Unit, table string) bool {
	if len(nodes) == 0 {
		return true
	}
	target := unit.DataNodeOf(table)
	for _, n := range nodes {
		if n.Equal(target) {
			return true
		}
	}
	return false
}

func toString(v any) string {
	return cast.ToString(v)
}
