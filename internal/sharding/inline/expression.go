package inline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ecodeclub/ekit/syncx"
	"github.com/spf13/cast"

	"github.com/meoying/dbkernel/internal/errs"
)

// 行表达式，例如 ds_${0..1}.t_order_${[0, 1]} 或者 t_order_${order_id % 2}。
// ${...} 和 $->{...} 两种写法等价

type segment struct {
	literal string
	expr    string
	// isExpr 是不是 ${...} 片段
	isExpr bool
}

func parse(expression string) ([]segment, error) {
	var res []segment
	var sb strings.Builder
	for i := 0; i < len(expression); i++ {
		open := 0
		switch {
		case strings.HasPrefix(expression[i:], "${"):
			open = 2
		case strings.HasPrefix(expression[i:], "$->{"):
			open = 4
		}
		if open == 0 {
			sb.WriteByte(expression[i])
			continue
		}
		end := matchBrace(expression, i+open)
		if end < 0 {
			return nil, errs.NewInvalidConfigError("行表达式 %s 的括号不匹配", expression)
		}
		if sb.Len() > 0 {
			res = append(res, segment{literal: sb.String()})
			sb.Reset()
		}
		res = append(res, segment{expr: strings.TrimSpace(expression[i+open : end]), isExpr: true})
		i = end
	}
	if sb.Len() > 0 {
		res = append(res, segment{literal: sb.String()})
	}
	return res, nil
}

// matchBrace 返回和 start 之前的左括号匹配的右括号位置
func matchBrace(s string, start int) int {
	depth := 1
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel 按照不在 ${} 和 [] 里面的逗号切分
func splitTopLevel(expression string) []string {
	var res []string
	depth := 0
	last := 0
	for i := 0; i < len(expression); i++ {
		switch expression[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case ',':
			if depth == 0 {
				res = append(res, strings.TrimSpace(expression[last:i]))
				last = i + 1
			}
		}
	}
	return append(res, strings.TrimSpace(expression[last:]))
}

// Expand 展开行表达式，多个片段之间做笛卡尔积，结果保持声明的顺序
func Expand(expression string) ([]string, error) {
	var res []string
	for _, part := range splitTopLevel(expression) {
		if part == "" {
			continue
		}
		segs, err := parse(part)
		if err != nil {
			return nil, err
		}
		values := []string{""}
		for _, seg := range segs {
			candidates := []string{seg.literal}
			if seg.isExpr {
				candidates, err = expandRange(seg.expr)
				if err != nil {
					return nil, err
				}
			}
			next := make([]string, 0, len(values)*len(candidates))
			for _, prefix := range values {
				for _, c := range candidates {
					next = append(next, prefix+c)
				}
			}
			values = next
		}
		res = append(res, values...)
	}
	return res, nil
}

// expandRange 支持 a..b 和 [x, y, z]，其它的原样返回
func expandRange(expr string) ([]string, error) {
	if strings.HasPrefix(expr, "[") && strings.HasSuffix(expr, "]") {
		items := strings.Split(expr[1:len(expr)-1], ",")
		res := make([]string, 0, len(items))
		for _, item := range items {
			res = append(res, strings.Trim(strings.TrimSpace(item), `'"`))
		}
		return res, nil
	}
	if lower, upper, ok := strings.Cut(expr, ".."); ok {
		lo, err := strconv.Atoi(strings.TrimSpace(lower))
		if err != nil {
			return nil, errs.NewInvalidConfigError("行表达式范围 %s 非法", expr)
		}
		hi, err := strconv.Atoi(strings.TrimSpace(upper))
		if err != nil || hi < lo {
			return nil, errs.NewInvalidConfigError("行表达式范围 %s 非法", expr)
		}
		res := make([]string, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			res = append(res, strconv.Itoa(i))
		}
		return res, nil
	}
	return []string{expr}, nil
}

// Expression 编译好的求值表达式，例如 t_order_${order_id % 2}
type Expression struct {
	raw      string
	segments []segment
	compiled []*govaluate.EvaluableExpression
}

var cache syncx.Map[string, *Expression]

// Compile 相同的表达式只编译一次
func Compile(expression string) (*Expression, error) {
	if e, ok := cache.Load(expression); ok {
		return e, nil
	}
	segs, err := parse(expression)
	if err != nil {
		return nil, err
	}
	e := &Expression{raw: expression, segments: segs, compiled: make([]*govaluate.EvaluableExpression, len(segs))}
	for i, seg := range segs {
		if !seg.isExpr {
			continue
		}
		ev, err := govaluate.NewEvaluableExpression(seg.expr)
		if err != nil {
			return nil, errs.NewInvalidConfigError("行表达式 %s 非法: %s", expression, err.Error())
		}
		e.compiled[i] = ev
	}
	e, _ = cache.LoadOrStore(expression, e)
	return e, nil
}

func (e *Expression) String() string {
	return e.raw
}

// Vars 表达式里面引用到的变量
func (e *Expression) Vars() []string {
	var res []string
	for _, c := range e.compiled {
		if c != nil {
			res = append(res, c.Vars()...)
		}
	}
	return res
}

// Evaluate vars 中的值会尽量转换成数字
func (e *Expression) Evaluate(vars map[string]any) (string, error) {
	params := make(map[string]any, len(vars))
	for k, v := range vars {
		params[k] = normalize(v)
	}
	var sb strings.Builder
	for i, seg := range e.segments {
		if !seg.isExpr {
			sb.WriteString(seg.literal)
			continue
		}
		val, err := e.compiled[i].Evaluate(params)
		if err != nil {
			return "", fmt.Errorf("行表达式 %s 求值失败: %w", e.raw, err)
		}
		sb.WriteString(format(val))
	}
	return sb.String(), nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return normalize(string(val))
	case string:
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
		return val
	}
	return v
}

// format 整数形式的浮点数不输出小数部分
func format(v any) string {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return cast.ToString(v)
}
