package mask

import (
	"strings"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rule"
)

var _ rule.ResultDecorator = &Rule{}

// Rule 脱敏规则，只作用在查询结果上，不会改写 SQL
type Rule struct {
	name string
	// tables 小写的逻辑表名 -> 小写的逻辑列名 -> 算法
	tables map[string]map[string]Algorithm
}

func NewRule(name string, cfg RuleConfiguration) (*Rule, error) {
	algs, err := Algorithms.NewAll(cfg.MaskAlgorithms)
	if err != nil {
		return nil, err
	}
	r := &Rule{name: name, tables: make(map[string]map[string]Algorithm, len(cfg.Tables))}
	for tn, tc := range cfg.Tables {
		cols := make(map[string]Algorithm, len(tc.Columns))
		for cn, cc := range tc.Columns {
			alg, ok := algs[cc.MaskAlgorithm]
			if !ok {
				return nil, errs.NewInvalidConfigError("脱敏列 %s.%s 引用的算法 %s 不存在", tn, cn, cc.MaskAlgorithm)
			}
			cols[strings.ToLower(cn)] = alg
		}
		r.tables[strings.ToLower(tn)] = cols
	}
	return r, nil
}

func (r *Rule) Kind() rule.Kind {
	return rule.KindMask
}

func (r *Rule) Name() string {
	return r.name
}

func (r *Rule) algorithm(table, column string) (Algorithm, bool) {
	cols, ok := r.tables[strings.ToLower(table)]
	if !ok {
		return nil, false
	}
	alg, ok := cols[strings.ToLower(column)]
	return alg, ok
}
