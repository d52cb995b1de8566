package algorithm

import (
	"sort"
	"strings"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/sharding/inline"
)

const (
	TypeInline        = "INLINE"
	TypeComplexInline = "COMPLEX_INLINE"
	TypeHintInline    = "HINT_INLINE"
)

// Inline 用行表达式计算目标，例如 t_order_${order_id % 2}
type Inline struct {
	expr       *inline.Expression
	allowRange bool
}

func NewInline(props *base.Props) (Algorithm, error) {
	raw, err := props.RequiredString("algorithm-expression")
	if err != nil {
		return nil, err
	}
	expr, err := inline.Compile(raw)
	if err != nil {
		return nil, err
	}
	return &Inline{
		expr:       expr,
		allowRange: props.Bool("allow-range-query-with-inline-sharding", false),
	}, nil
}

func (*Inline) Type() string {
	return TypeInline
}

func (i *Inline) Match(targets []string, value PreciseValue) (string, bool, error) {
	name, err := i.expr.Evaluate(map[string]any{value.Column: value.Value})
	if err != nil {
		return "", false, err
	}
	return findByName(targets, name)
}

func (i *Inline) MatchRange(targets []string, value RangeValue) ([]string, error) {
	if !i.allowRange {
		return nil, errs.NewUnsupportedOperationError("INLINE 分片范围查询",
			"分片列 "+value.Column+" 需要开启 allow-range-query-with-inline-sharding")
	}
	return allTargets(targets), nil
}

// ComplexInline 多个分片列共同参与的行表达式
type ComplexInline struct {
	expr       *inline.Expression
	columns    []string
	allowRange bool
}

func NewComplexInline(props *base.Props) (Algorithm, error) {
	raw, err := props.RequiredString("algorithm-expression")
	if err != nil {
		return nil, err
	}
	expr, err := inline.Compile(raw)
	if err != nil {
		return nil, err
	}
	columns := props.Strings("sharding-columns")
	if len(columns) == 0 {
		columns = expr.Vars()
	}
	return &ComplexInline{
		expr:       expr,
		columns:    columns,
		allowRange: props.Bool("allow-range-query-with-inline-sharding", false),
	}, nil
}

func (*ComplexInline) Type() string {
	return TypeComplexInline
}

// MatchComplex 每个分片列都要有精确值，多个值之间做笛卡尔积
func (c *ComplexInline) MatchComplex(targets []string, value ComplexValue) ([]string, error) {
	combos := []map[string]any{{}}
	for _, col := range c.columns {
		vals, ok := lookup(value.Values, col)
		if !ok {
			if _, isRange := lookupRange(value.Ranges, col); isRange && !c.allowRange {
				return nil, errs.NewUnsupportedOperationError("COMPLEX_INLINE 分片范围查询",
					"分片列 "+col+" 需要开启 allow-range-query-with-inline-sharding")
			}
			return allTargets(targets), nil
		}
		next := make([]map[string]any, 0, len(combos)*len(vals))
		for _, combo := range combos {
			for _, v := range vals {
				m := make(map[string]any, len(combo)+1)
				for k, cv := range combo {
					m[k] = cv
				}
				m[col] = v
				next = append(next, m)
			}
		}
		combos = next
	}
	res := make([]string, 0, len(combos))
	seen := make(map[string]struct{}, len(combos))
	for _, combo := range combos {
		name, err := c.expr.Evaluate(combo)
		if err != nil {
			return nil, err
		}
		t, ok, _ := findByName(targets, name)
		if _, dup := seen[t]; !ok || dup {
			continue
		}
		seen[t] = struct{}{}
		res = append(res, t)
	}
	return res, nil
}

// HintInline 用 ${value} 引用 hint 中的值
type HintInline struct {
	expr *inline.Expression
}

func NewHintInline(props *base.Props) (Algorithm, error) {
	expr, err := inline.Compile(props.String("algorithm-expression", "${value}"))
	if err != nil {
		return nil, err
	}
	return &HintInline{expr: expr}, nil
}

func (*HintInline) Type() string {
	return TypeHintInline
}

func (h *HintInline) MatchHint(targets []string, value HintValue) ([]string, error) {
	if len(value.Values) == 0 {
		return allTargets(targets), nil
	}
	res := make([]string, 0, len(value.Values))
	for _, v := range value.Values {
		name, err := h.expr.Evaluate(map[string]any{"value": v})
		if err != nil {
			return nil, err
		}
		if t, ok, _ := findByName(targets, name); ok {
			res = append(res, t)
		}
	}
	sort.Strings(res)
	return dedupe(res), nil
}

func findByName(targets []string, name string) (string, bool, error) {
	for _, t := range targets {
		if strings.EqualFold(t, name) {
			return t, true, nil
		}
	}
	return "", false, nil
}

func lookup(values map[string][]any, column string) ([]any, bool) {
	for k, v := range values {
		if strings.EqualFold(k, column) && len(v) > 0 {
			return v, true
		}
	}
	return nil, false
}

func lookupRange(ranges map[string]Range, column string) (Range, bool) {
	for k, v := range ranges {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return Range{}, false
}

// dedupe 要求已经排好序
func dedupe(vals []string) []string {
	res := vals[:0]
	for i, v := range vals {
		if i == 0 || v != vals[i-1] {
			res = append(res, v)
		}
	}
	return res
}
