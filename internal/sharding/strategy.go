package sharding

import (
	"strings"

	"github.com/ecodeclub/ekit/slice"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/sharding/algorithm"
	shardingerrs "github.com/meoying/dbkernel/internal/sharding/internal/errs"
)

// strategy 分库或者分表策略，从候选目标中选出命中的那些
type strategy interface {
	// columns 小写的分片列
	columns() []string
	shard(targets []string, logicTable string, values conditionValues, hint []any) ([]string, error)
}

func newStrategy(table string, cfg *StrategyConfiguration, defaultColumn string,
	algorithms map[string]algorithm.Algorithm) (strategy, error) {
	if cfg == nil {
		return noneStrategy{}, nil
	}
	cnt := 0
	for _, set := range []bool{cfg.Standard != nil, cfg.Complex != nil, cfg.Hint != nil, cfg.None != nil} {
		if set {
			cnt++
		}
	}
	if cnt > 1 {
		return nil, shardingerrs.NewStrategyConflictError(table)
	}
	switch {
	case cfg.Standard != nil:
		column := cfg.Standard.ShardingColumn
		if column == "" {
			column = defaultColumn
		}
		if column == "" {
			return nil, errs.NewInvalidConfigError("逻辑表 %s 的 standard 策略缺少分片列", table)
		}
		alg, err := findAlgorithm[algorithm.Standard](table, cfg.Standard.ShardingAlgorithmName, algorithms)
		if err != nil {
			return nil, err
		}
		return &standardStrategy{column: strings.ToLower(column), algorithm: alg}, nil
	case cfg.Complex != nil:
		alg, err := findAlgorithm[algorithm.Complex](table, cfg.Complex.ShardingAlgorithmName, algorithms)
		if err != nil {
			return nil, err
		}
		cols := slice.FilterMap(strings.Split(cfg.Complex.ShardingColumns, ","), func(idx int, src string) (string, bool) {
			src = strings.ToLower(strings.TrimSpace(src))
			return src, src != ""
		})
		if len(cols) == 0 {
			return nil, errs.NewInvalidConfigError("逻辑表 %s 的 complex 策略缺少分片列", table)
		}
		return &complexStrategy{cols: cols, algorithm: alg}, nil
	case cfg.Hint != nil:
		alg, err := findAlgorithm[algorithm.Hint](table, cfg.Hint.ShardingAlgorithmName, algorithms)
		if err != nil {
			return nil, err
		}
		return &hintStrategy{algorithm: alg}, nil
	}
	return noneStrategy{}, nil
}

func findAlgorithm[T algorithm.Algorithm](table, name string, algorithms map[string]algorithm.Algorithm) (T, error) {
	var t T
	alg, ok := algorithms[name]
	if !ok {
		return t, errs.NewInvalidConfigError("逻辑表 %s 引用的分片算法 %s 不存在", table, name)
	}
	t, ok = alg.(T)
	if !ok {
		return t, errs.NewInvalidConfigError("逻辑表 %s 引用的分片算法 %s(%s) 不支持这种策略", table, name, alg.Type())
	}
	return t, nil
}

type standardStrategy struct {
	column    string
	algorithm algorithm.Standard
}

func (s *standardStrategy) columns() []string {
	return []string{s.column}
}

func (s *standardStrategy) shard(targets []string, logicTable string, values conditionValues, _ []any) ([]string, error) {
	cv, ok := values[s.column]
	if !ok {
		return targets, nil
	}
	if cv.precise() {
		res := make([]string, 0, len(cv.values))
		for _, v := range cv.values {
			target, ok, err := s.algorithm.Match(targets, algorithm.PreciseValue{
				LogicTable: logicTable,
				Column:     s.column,
				Value:      v,
			})
			if err != nil {
				return nil, err
			}
			if ok && !slice.Contains(res, target) {
				res = append(res, target)
			}
		}
		return res, nil
	}
	return s.algorithm.MatchRange(targets, algorithm.RangeValue{
		LogicTable: logicTable,
		Column:     s.column,
		Range:      cv.rng,
	})
}

type complexStrategy struct {
	cols      []string
	algorithm algorithm.Complex
}

func (s *complexStrategy) columns() []string {
	return s.cols
}

func (s *complexStrategy) shard(targets []string, logicTable string, values conditionValues, _ []any) ([]string, error) {
	val := algorithm.ComplexValue{
		LogicTable: logicTable,
		Values:     make(map[string][]any, len(s.cols)),
		Ranges:     make(map[string]algorithm.Range, len(s.cols)),
	}
	for _, c := range s.cols {
		cv, ok := values[c]
		if !ok {
			continue
		}
		if cv.precise() {
			val.Values[c] = cv.values
		} else {
			val.Ranges[c] = cv.rng
		}
	}
	if len(val.Values) == 0 && len(val.Ranges) == 0 {
		return targets, nil
	}
	return s.algorithm.MatchComplex(targets, val)
}

type hintStrategy struct {
	algorithm algorithm.Hint
}

func (*hintStrategy) columns() []string {
	return nil
}

func (s *hintStrategy) shard(targets []string, logicTable string, _ conditionValues, hint []any) ([]string, error) {
	if len(hint) == 0 {
		return targets, nil
	}
	return s.algorithm.MatchHint(targets, algorithm.HintValue{LogicTable: logicTable, Values: hint})
}

// noneStrategy 不分片，所有候选目标都命中
type noneStrategy struct{}

func (noneStrategy) columns() []string {
	return nil
}

func (noneStrategy) shard(targets []string, _ string, _ conditionValues, _ []any) ([]string, error) {
	return targets, nil
}
