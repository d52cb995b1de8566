package shadow

import (
	"strings"

	"github.com/meoying/dbkernel/internal/statement"
)

// columnValues 语句中某一列的值。INSERT 是所有行的值；
// 其它语句是 WHERE 中每一个等值或者 IN 谓词的值，每个谓词一组。
// 值无法解析的时候忽略
func columnValues(stmt *statement.Statement, table, column string, params []any) [][]ColumnValue {
	if stmt.Kind == statement.KindInsert {
		return insertValues(stmt, column, params)
	}
	var res [][]ColumnValue
	for _, c := range stmt.Conditions {
		for _, p := range c.Predicates {
			if !p.Op.IsPrecise() || !strings.EqualFold(p.Column, column) {
				continue
			}
			if p.Table != "" && p.Table != table {
				continue
			}
			// 谓词上的表名以 binder 的结果为准，解析不出来的时候用限定名
			owner := p.Table
			if owner == "" {
				owner = ownerTable(stmt, p.Owner)
			}
			group := make([]ColumnValue, 0, len(p.Values))
			for _, v := range p.Values {
				val, err := v.Resolve(params)
				if err != nil {
					continue
				}
				group = append(group, ColumnValue{Table: owner, Column: p.Column, Value: val})
			}
			res = append(res, group)
		}
	}
	return res
}

func ownerTable(stmt *statement.Statement, owner string) string {
	if owner == "" {
		if len(stmt.Tables) == 1 {
			return stmt.Tables[0].Name
		}
		return ""
	}
	if t, ok := stmt.Table(owner); ok {
		return t.Name
	}
	return owner
}

func insertValues(stmt *statement.Statement, column string, params []any) [][]ColumnValue {
	insert := stmt.Insert
	if insert == nil {
		return nil
	}
	idx := insert.ColumnIndex(column)
	if idx < 0 {
		return nil
	}
	group := make([]ColumnValue, 0, len(insert.Rows))
	for _, row := range insert.Rows {
		if idx >= len(row.Values) {
			continue
		}
		val, err := row.Values[idx].Resolve(params)
		if err != nil {
			continue
		}
		group = append(group, ColumnValue{Table: insert.Table, Column: insert.Columns[idx], Value: val})
	}
	return [][]ColumnValue{group}
}
