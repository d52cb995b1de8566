package algorithm

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"

	base "github.com/meoying/dbkernel/internal/algorithm"
)

// Algorithm 分片算法。具体能力由 Standard、Complex、Hint 三个接口表达，
// 一个算法可以实现其中的多个
type Algorithm interface {
	Type() string
}

// Standard 单列分片，支持精确值和范围
type Standard interface {
	Algorithm
	// Match 第二个返回值为 false 表示没有任何目标匹配
	Match(targets []string, value PreciseValue) (string, bool, error)
	MatchRange(targets []string, value RangeValue) ([]string, error)
}

// Complex 多列分片
type Complex interface {
	Algorithm
	MatchComplex(targets []string, value ComplexValue) ([]string, error)
}

// Hint 分片值来自 hint 而不是 SQL
type Hint interface {
	Algorithm
	MatchHint(targets []string, value HintValue) ([]string, error)
}

type PreciseValue struct {
	LogicTable string
	Column     string
	Value      any
}

// Range 闭区间，nil 表示这一侧没有边界。
// 开区间按照闭区间处理，多出来的目标不影响正确性
type Range struct {
	Lower any
	Upper any
}

type RangeValue struct {
	LogicTable string
	Column     string
	Range      Range
}

type ComplexValue struct {
	LogicTable string
	// Values 列名到精确值
	Values map[string][]any
	// Ranges 列名到范围
	Ranges map[string]Range
}

type HintValue struct {
	LogicTable string
	Values     []any
}

// Registry 内置的分片算法
var Registry = func() *base.Registry[Algorithm] {
	r := base.NewRegistry[Algorithm]("sharding")
	r.Register(TypeMod, NewMod)
	r.Register(TypeHashMod, NewHashMod)
	r.Register(TypeInline, NewInline)
	r.Register(TypeComplexInline, NewComplexInline)
	r.Register(TypeHintInline, NewHintInline)
	r.Register(TypeVolumeRange, NewVolumeRange)
	r.Register(TypeBoundaryRange, NewBoundaryRange)
	r.Register(TypeInterval, NewInterval)
	return r
}()

// suffixOf 名字末尾的数字，例如 t_order_12 返回 12
func suffixOf(name string) (int64, bool) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return 0, false
	}
	v, err := strconv.ParseInt(name[i:], 10, 64)
	return v, err == nil
}

// findBySuffix 按照末尾的数字查找目标
func findBySuffix(targets []string, suffix int64) (string, bool) {
	for _, t := range targets {
		if s, ok := suffixOf(t); ok && s == suffix {
			return t, true
		}
	}
	return "", false
}

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case []byte:
		v = strings.TrimSpace(string(val))
	case string:
		v = strings.TrimSpace(val)
	}
	return cast.ToInt64E(v)
}

func allTargets(targets []string) []string {
	res := make([]string, len(targets))
	copy(res, targets)
	return res
}
