package route

import (
	"strings"
)

// Intersect 两个独立收窄的路由结果取交集。
// 逻辑数据源相同，并且两边都出现的逻辑表映射到相同真实表的单元才会保留，保留的单元包含两边的表
func Intersect(a, b *Context) *Context {
	builder := a.ToBuilder()
	units := make([]Unit, 0, a.Len())
	for _, ua := range a.Units() {
		for _, ub := range b.Units() {
			if merged, ok := mergeUnit(ua, ub); ok {
				units = append(units, merged)
			}
		}
	}
	if b.OriginalDataNodes() != nil && a.OriginalDataNodes() == nil {
		builder.SetOriginalDataNodes(b.OriginalDataNodes())
	}
	if b.GeneratedKey() != nil && a.GeneratedKey() == nil {
		builder.SetGeneratedKey(b.GeneratedKey())
	}
	return builder.SetUnits(units).Build()
}

func mergeUnit(a, b Unit) (Unit, bool) {
	if !strings.EqualFold(a.DataSource.LogicName, b.DataSource.LogicName) {
		return Unit{}, false
	}
	tables := make([]Mapper, 0, len(a.Tables)+len(b.Tables))
	tables = append(tables, a.Tables...)
	for _, tb := range b.Tables {
		actual := a.ActualTableNames(tb.LogicName)
		if len(actual) == 0 {
			tables = append(tables, tb)
			continue
		}
		if !containsFold(actual, tb.ActualName) {
			return Unit{}, false
		}
	}
	return NewUnit(a.DataSource, tables...), true
}

func containsFold(vals []string, v string) bool {
	for _, s := range vals {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
