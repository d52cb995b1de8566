package rule

import (
	"sort"

	"github.com/ecodeclub/ekit/slice"
)

// Resolve 找出实现了能力 T 的规则，按照 Kind 的顺序排序。
// 顺序相同的保持注册顺序。没有任何规则实现的时候返回空切片
func Resolve[T any](rules []Rule) []T {
	type entry struct {
		order   int
		handler T
	}
	entries := slice.FilterMap(rules, func(idx int, src Rule) (entry, bool) {
		h, ok := src.(T)
		if !ok {
			return entry{}, false
		}
		return entry{order: src.Kind().Order(), handler: h}, true
	})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})
	return slice.Map(entries, func(idx int, src entry) T {
		return src.handler
	})
}

// Find 第一个指定类型的规则
func Find[T Rule](rules []Rule) (T, bool) {
	for _, r := range rules {
		if t, ok := r.(T); ok {
			return t, true
		}
	}
	var t T
	return t, false
}
