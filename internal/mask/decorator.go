package mask

import (
	"fmt"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

// Decorate 只处理 SELECT。SELECT * 按照结果集的列名匹配，否则按照投影的位置匹配
func (r *Rule) Decorate(mc *rule.MergeContext, rs rows.Rows) (rows.Rows, error) {
	stmt := mc.Statement
	if stmt.Kind != statement.KindSelect {
		return rs, nil
	}
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	targets := make(map[int]Algorithm, len(cols))
	if hasStar(stmt) {
		for i, name := range cols {
			for _, t := range stmt.Tables {
				if alg, ok := r.algorithm(t.Name, name); ok {
					targets[i] = alg
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
			if alg, ok := r.algorithm(ownerTable(stmt, p), p.Column); ok {
				targets[i] = alg
			}
		}
	}
	if len(targets) == 0 {
		return rs, nil
	}
	return &maskRows{Rows: rs, columns: cols, targets: targets}, nil
}

func hasStar(stmt *statement.Statement) bool {
	for _, p := range stmt.Projections {
		if p.IsStar() {
			return true
		}
	}
	return false
}

func ownerTable(stmt *statement.Statement, p statement.Projection) string {
	switch {
	case p.Table != "":
		return p.Table
	case p.Owner != "":
		if t, ok := stmt.Table(p.Owner); ok {
			return t.Name
		}
		return p.Owner
	case len(stmt.Tables) == 1:
		return stmt.Tables[0].Name
	}
	return ""
}

type maskRows struct {
	rows.Rows
	columns []string
	targets map[int]Algorithm
	row     int
}

func (m *maskRows) Next() bool {
	if m.Rows.Next() {
		m.row++
		return true
	}
	return false
}

func (m *maskRows) Scan(dest ...any) error {
	if len(dest) != len(m.columns) {
		return fmt.Errorf("dbkernel: 期望 %d 个扫描目标，实际 %d 个", len(m.columns), len(dest))
	}
	vals, err := rows.ScanRaw(m.Rows, len(m.columns))
	if err != nil {
		return err
	}
	for idx, alg := range m.targets {
		masked, err := alg.Mask(vals[idx])
		if err != nil {
			return errs.NewDecorateError(m.columns[idx], m.row, err)
		}
		vals[idx] = masked
	}
	for i := range dest {
		if err = rows.ConvertAssign(dest[i], vals[i]); err != nil {
			return err
		}
	}
	return nil
}
