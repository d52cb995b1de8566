// Package parameter 改写之后的参数列表。
// 改写过程中会替换参数（例如加密之后的密文），也会新增参数（例如辅助查询列），
// 下标始终指的是原始参数列表中的下标
package parameter

// Builder 两种 Builder 公共的修改能力
type Builder interface {
	// Replace 替换原始参数列表中下标为 index 的参数
	Replace(index int, value any)
	// AddAfter 在原始参数 index 之后新增参数
	AddAfter(index int, values ...any)
}

type modifications struct {
	replaced map[int]any
	added    map[int][]any
}

func newModifications() modifications {
	return modifications{
		replaced: make(map[int]any, 4),
		added:    make(map[int][]any, 4),
	}
}

func (m *modifications) Replace(index int, value any) {
	m.replaced[index] = value
}

func (m *modifications) AddAfter(index int, values ...any) {
	m.added[index] = append(m.added[index], values...)
}

// appendParam 把原始参数 index 以及它后面新增的参数加到 dst
func (m *modifications) appendParam(dst []any, original []any, index int) []any {
	if v, ok := m.replaced[index]; ok {
		dst = append(dst, v)
	} else {
		dst = append(dst, original[index])
	}
	return append(dst, m.added[index]...)
}

// StandardBuilder 扁平的参数列表
type StandardBuilder struct {
	modifications
	original []any
}

func NewStandardBuilder(params []any) *StandardBuilder {
	return &StandardBuilder{
		modifications: newModifications(),
		original:      params,
	}
}

func (b *StandardBuilder) Parameters() []any {
	res := make([]any, 0, len(b.original)+len(b.added))
	for i := range b.original {
		res = b.appendParam(res, b.original, i)
	}
	return res
}

// GroupedBuilder 多行 INSERT 的参数，每一行是一组。
// 不属于任何一组的参数是公共参数，例如 ON DUPLICATE KEY UPDATE 里面的参数，会追加到每个单元的参数后面
type GroupedBuilder struct {
	modifications
	original []any
	groups   [][]int
	generic  []int
	// groupAdded 追加到组末尾的参数，例如自动生成的主键
	groupAdded map[int][]any
}

// NewGroupedBuilder groups 是每一组使用的原始参数下标
func NewGroupedBuilder(params []any, groups [][]int) *GroupedBuilder {
	used := make(map[int]struct{}, len(params))
	for _, g := range groups {
		for _, idx := range g {
			used[idx] = struct{}{}
		}
	}
	generic := make([]int, 0, len(params)-len(used))
	for i := range params {
		if _, ok := used[i]; !ok {
			generic = append(generic, i)
		}
	}
	return &GroupedBuilder{
		modifications: newModifications(),
		original:      params,
		groups:        groups,
		generic:       generic,
		groupAdded:    make(map[int][]any, len(groups)),
	}
}

func (b *GroupedBuilder) GroupCount() int {
	return len(b.groups)
}

// AddToGroup 在某一组的末尾追加参数
func (b *GroupedBuilder) AddToGroup(group int, values ...any) {
	b.groupAdded[group] = append(b.groupAdded[group], values...)
}

func (b *GroupedBuilder) GroupParameters(group int) []any {
	res := make([]any, 0, len(b.groups[group])+len(b.groupAdded[group]))
	for _, idx := range b.groups[group] {
		res = b.appendParam(res, b.original, idx)
	}
	return append(res, b.groupAdded[group]...)
}

func (b *GroupedBuilder) GenericParameters() []any {
	res := make([]any, 0, len(b.generic))
	for _, idx := range b.generic {
		res = b.appendParam(res, b.original, idx)
	}
	return res
}

// Parameters 指定的几组按原始顺序拼接，最后追加公共参数
func (b *GroupedBuilder) Parameters(groups []int) []any {
	var res []any
	for _, g := range groups {
		res = append(res, b.GroupParameters(g)...)
	}
	return append(res, b.GenericParameters()...)
}

// AllParameters 所有组加上公共参数
func (b *GroupedBuilder) AllParameters() []any {
	groups := make([]int, len(b.groups))
	for i := range groups {
		groups[i] = i
	}
	return b.Parameters(groups)
}

// BroadcastParameters 同一份数据发到 n 个单元，每个单元拿到完整的参数
func (b *GroupedBuilder) BroadcastParameters(n int) [][]any {
	res := make([][]any, 0, n)
	for i := 0; i < n; i++ {
		res = append(res, b.AllParameters())
	}
	return res
}
