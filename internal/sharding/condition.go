package sharding

import (
	"fmt"
	"strings"

	"github.com/ecodeclub/ekit/slice"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/sharding/algorithm"
	"github.com/meoying/dbkernel/internal/statement"
)

// columnValue 一个分片列在一组条件中的取值。
// values 不为 nil 时是精确值，空切片表示条件互相矛盾，什么都不会命中
type columnValue struct {
	values []any
	rng    algorithm.Range
}

func (c *columnValue) precise() bool {
	return c.values != nil
}

// conditionValues 小写的分片列到取值
type conditionValues map[string]*columnValue

// extractConditions WHERE 条件里面逻辑表的分片值，每一个 OR 分支一组。
// 没有条件的时候返回一个空的组，表示全路由
func extractConditions(stmt *statement.Statement, table string, columns []string, params []any) ([]conditionValues, error) {
	if len(stmt.Conditions) == 0 {
		return []conditionValues{{}}, nil
	}
	groups := stmt.PredicatesOf(table)
	res := make([]conditionValues, 0, len(groups))
	for _, g := range groups {
		values := make(conditionValues, len(columns))
		for _, p := range g {
			col := strings.ToLower(p.Column)
			if !slice.Contains(columns, col) {
				continue
			}
			if err := values.add(p, params); err != nil {
				return nil, err
			}
		}
		res = append(res, values)
	}
	return res, nil
}

func (c conditionValues) add(p statement.Predicate, params []any) error {
	vals := make([]any, 0, len(p.Values))
	for _, v := range p.Values {
		val, err := v.Resolve(params)
		if err != nil {
			return err
		}
		vals = append(vals, val)
	}
	col := strings.ToLower(p.Column)
	switch p.Op {
	case statement.OpEQ, statement.OpIn:
		c.addPrecise(col, vals)
	case statement.OpBetween:
		if len(vals) != 2 {
			return fmt.Errorf("BETWEEN 需要两个值, 实际 %d 个", len(vals))
		}
		c.addRange(col, algorithm.Range{Lower: vals[0], Upper: vals[1]})
	case statement.OpGT, statement.OpGTEQ:
		if len(vals) > 0 {
			c.addRange(col, algorithm.Range{Lower: vals[0]})
		}
	case statement.OpLT, statement.OpLTEQ:
		if len(vals) > 0 {
			c.addRange(col, algorithm.Range{Upper: vals[0]})
		}
	}
	// 其它操作符无法缩小范围
	return nil
}

func (c conditionValues) addPrecise(col string, vals []any) {
	cv, ok := c[col]
	if !ok {
		c[col] = &columnValue{values: vals}
		return
	}
	if !cv.precise() {
		// 精确值优先，范围只用来过滤
		c[col] = &columnValue{values: slice.FilterMap(vals, func(idx int, src any) (any, bool) {
			return src, inRange(src, cv.rng)
		})}
		return
	}
	// 同一组里面多个等值条件是 AND 的关系
	cv.values = slice.IntersectSetFunc(cv.values, vals, func(src, dst any) bool {
		return merger.CompareValues(src, dst, merger.OrderASC) == 0
	})
	if cv.values == nil {
		cv.values = []any{}
	}
}

func (c conditionValues) addRange(col string, rng algorithm.Range) {
	cv, ok := c[col]
	if !ok {
		c[col] = &columnValue{rng: rng}
		return
	}
	if cv.precise() {
		cv.values = slice.FilterMap(cv.values, func(idx int, src any) (any, bool) {
			return src, inRange(src, rng)
		})
		return
	}
	if rng.Lower != nil && (cv.rng.Lower == nil || merger.CompareValues(rng.Lower, cv.rng.Lower, merger.OrderASC) > 0) {
		cv.rng.Lower = rng.Lower
	}
	if rng.Upper != nil && (cv.rng.Upper == nil || merger.CompareValues(rng.Upper, cv.rng.Upper, merger.OrderASC) < 0) {
		cv.rng.Upper = rng.Upper
	}
}

func inRange(v any, rng algorithm.Range) bool {
	if rng.Lower != nil && merger.CompareValues(v, rng.Lower, merger.OrderASC) < 0 {
		return false
	}
	return rng.Upper == nil || merger.CompareValues(v, rng.Upper, merger.OrderASC) <= 0
}

// insertRowValues INSERT 一行数据中的分片值
func insertRowValues(insert *statement.Insert, row int, columns []string, params []any,
	generated *generatedColumn) (conditionValues, error) {
	res := make(conditionValues, len(columns))
	for _, col := range columns {
		if generated != nil && strings.EqualFold(generated.column, col) {
			res[col] = &columnValue{values: []any{generated.values[row]}}
			continue
		}
		idx := insert.ColumnIndex(col)
		if idx < 0 || idx >= len(insert.Rows[row].Values) {
			continue
		}
		v, err := insert.Rows[row].Values[idx].Resolve(params)
		if err != nil {
			return nil, err
		}
		res[col] = &columnValue{values: []any{v}}
	}
	return res, nil
}

type generatedColumn struct {
	column string
	values []any
}
