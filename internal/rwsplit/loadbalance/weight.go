package loadbalance

import (
	"math/rand/v2"
	"strings"

	"github.com/spf13/cast"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

// Weight 按照读库的权重随机选择，属性名就是读库名，值是权重
type Weight struct {
	weights map[string]float64
	// next 返回 [0, n) 的随机数，测试的时候替换
	next func(n float64) float64
}

func NewWeight(props *base.Props) (*Weight, error) {
	keys := props.Keys()
	if len(keys) == 0 {
		return nil, errs.NewInvalidConfigError("WEIGHT 负载均衡至少要配置一个读库的权重")
	}
	w := &Weight{
		weights: make(map[string]float64, len(keys)),
		next: func(n float64) float64 {
			return rand.Float64() * n
		},
	}
	for _, k := range keys {
		v, err := cast.ToFloat64E(strings.TrimSpace(props.String(k, "")))
		if err != nil || v < 0 {
			return nil, errs.NewInvalidConfigError("读库 %s 的权重 %q 非法", k, props.String(k, ""))
		}
		w.weights[strings.ToLower(k)] = v
	}
	return w, nil
}

func (*Weight) Type() string {
	return TypeWeight
}

// Select 没有配置权重的读库权重为 0。所有读库权重都是 0 的时候选第一个
func (w *Weight) Select(_, _ string, readNames []string) string {
	total := 0.0
	acc := make([]float64, len(readNames))
	for i, name := range readNames {
		total += w.weights[strings.ToLower(name)]
		acc[i] = total
	}
	if total <= 0 {
		return readNames[0]
	}
	target := w.next(total)
	for i, v := range acc {
		if target < v {
			return readNames[i]
		}
	}
	return readNames[len(readNames)-1]
}
