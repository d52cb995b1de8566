package encrypt

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

// Decorate 查询结果解密，DESCRIBE 的结果换成逻辑列
func (r *Rule) Decorate(mc *rule.MergeContext, rs rows.Rows) (rows.Rows, error) {
	stmt := mc.Statement
	switch {
	case stmt.Kind == statement.KindSelect:
		return r.decorateQuery(stmt, rs)
	case stmt.Kind == statement.KindDAL && stmt.DAL == statement.DALShowColumns && len(stmt.Tables) > 0:
		t, ok := r.table(stmt.Tables[0].Name)
		if !ok {
			return rs, nil
		}
		return &describeRows{Rows: rs, table: t}, nil
	}
	return rs, nil
}

func (r *Rule) decorateQuery(stmt *statement.Statement, rs rows.Rows) (rows.Rows, error) {
	if !r.touches(stmt) {
		return rs, nil
	}
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	copy(names, cols)
	targets := make(map[int]*column, len(cols))
	if hasStar(stmt) {
		// SELECT * 拿到的是密文列名
		for i, name := range cols {
			for _, st := range stmt.Tables {
				t, ok := r.table(st.Name)
				if !ok {
					continue
				}
				if c, ok := t.cipherColumn(name); ok {
					targets[i] = c
					names[i] = c.logic
					break
				}
			}
		}
	} else {
		for i, p := range stmt.Projections {
			if i >= len(cols) {
				break
			}
			if p.AggregateFunc != "" {
				continue
			}
			if c, ok := r.column(tableOf(stmt, p.Table, p.Owner), p.Column); ok {
				targets[i] = c
			}
		}
	}
	if len(targets) == 0 {
		return rs, nil
	}
	return &decryptRows{Rows: rs, columns: names, targets: targets}, nil
}

func hasStar(stmt *statement.Statement) bool {
	for _, p := range stmt.Projections {
		if p.IsStar() {
			return true
		}
	}
	return false
}

// decryptRows 只转换值，不会跳过或者额外推进行
type decryptRows struct {
	rows.Rows
	columns []string
	targets map[int]*column
	row     int
}

func (d *decryptRows) Columns() ([]string, error) {
	if _, err := d.Rows.Columns(); err != nil {
		return nil, err
	}
	return d.columns, nil
}

func (d *decryptRows) Next() bool {
	if d.Rows.Next() {
		d.row++
		return true
	}
	return false
}

func (d *decryptRows) Scan(dest ...any) error {
	vals, err := scanRow(d.Rows, len(d.columns), dest)
	if err != nil {
		return err
	}
	for idx, c := range d.targets {
		plain, err := c.encryptor.Decrypt(vals[idx])
		if err != nil {
			return errs.NewDecryptError(c.logic, d.row, err)
		}
		vals[idx] = plain
	}
	return assign(dest, vals)
}

// describeRows DESCRIBE 的第一列是列名，第二列是类型
type describeRows struct {
	rows.Rows
	table *table
	row   int
}

func (d *describeRows) Next() bool {
	if d.Rows.Next() {
		d.row++
		return true
	}
	return false
}

func (d *describeRows) Scan(dest ...any) error {
	cols, err := d.Rows.Columns()
	if err != nil {
		return err
	}
	vals, err := scanRow(d.Rows, len(cols), dest)
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		name, err := cast.ToStringE(toText(vals[0]))
		if err != nil {
			return errs.NewDecorateError(cols[0], d.row, err)
		}
		if c, ok := d.table.cipherColumn(name); ok {
			vals[0] = c.logic
			if c.dataType != "" && len(vals) > 1 {
				vals[1] = c.dataType
			}
		}
	}
	return assign(dest, vals)
}

func toText(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func scanRow(r rows.Rows, n int, dest []any) ([]any, error) {
	if len(dest) != n {
		return nil, fmt.Errorf("dbkernel: 期望 %d 个扫描目标，实际 %d 个", n, len(dest))
	}
	return rows.ScanRaw(r, n)
}

func assign(dest, vals []any) error {
	for i := range dest {
		if err := rows.ConvertAssign(dest[i], vals[i]); err != nil {
			return err
		}
	}
	return nil
}
