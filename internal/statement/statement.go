package statement

import (
	"strings"
)

// Statement 已经解析并且绑定过元数据的语句。
// 在一次请求的处理过程中是只读的
type Statement struct {
	SQL  string  `yaml:"sql" json:"sql"`
	Kind Kind    `yaml:"kind" json:"kind"`
	DAL  DALKind `yaml:"dal,omitempty" json:"dal,omitempty"`

	Tables      []Table      `yaml:"tables,omitempty" json:"tables,omitempty"`
	Projections []Projection `yaml:"projections,omitempty" json:"projections,omitempty"`
	Distinct    bool         `yaml:"distinct,omitempty" json:"distinct,omitempty"`
	// Conditions WHERE 子句的析取范式，组之间是 OR，组内是 AND
	Conditions  []Condition  `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Insert      *Insert      `yaml:"insert,omitempty" json:"insert,omitempty"`
	Assignments []Assignment `yaml:"assignments,omitempty" json:"assignments,omitempty"`
	GroupBy     []OrderItem  `yaml:"groupBy,omitempty" json:"groupBy,omitempty"`
	OrderBy     []OrderItem  `yaml:"orderBy,omitempty" json:"orderBy,omitempty"`
	Pagination  *Pagination  `yaml:"pagination,omitempty" json:"pagination,omitempty"`
	// Combines UNION 之类的子句，每一个分支单独绑定
	Combines []*Statement `yaml:"combines,omitempty" json:"combines,omitempty"`
	Hint     Hint         `yaml:"hint,omitempty" json:"hint,omitempty"`
}

// TableNames 引用到的所有逻辑表，包含 COMBINE 分支，去重并且保持出现顺序
func (s *Statement) TableNames() []string {
	res := make([]string, 0, len(s.Tables))
	seen := make(map[string]struct{}, len(s.Tables))
	s.walk(func(st *Statement) {
		for _, t := range st.Tables {
			key := strings.ToLower(t.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			res = append(res, t.Name)
		}
		if st.Insert != nil {
			key := strings.ToLower(st.Insert.Table)
			if _, ok := seen[key]; !ok && key != "" {
				seen[key] = struct{}{}
				res = append(res, st.Insert.Table)
			}
		}
	})
	return res
}

// Table 按照表名或者别名查找
func (s *Statement) Table(nameOrAlias string) (Table, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, nameOrAlias) || (t.Alias != "" && strings.EqualFold(t.Alias, nameOrAlias)) {
			return t, true
		}
	}
	return Table{}, false
}

// PredicatesOf 某张逻辑表在所有条件组中的谓词，按组返回
func (s *Statement) PredicatesOf(table string) [][]Predicate {
	res := make([][]Predicate, 0, len(s.Conditions))
	for _, c := range s.Conditions {
		ps := make([]Predicate, 0, len(c.Predicates))
		for _, p := range c.Predicates {
			if strings.EqualFold(p.Table, table) {
				ps = append(ps, p)
			}
		}
		res = append(res, ps)
	}
	return res
}

// HasAggregate 投影中是否有聚合函数
func (s *Statement) HasAggregate() bool {
	for _, p := range s.Projections {
		if p.AggregateFunc != "" {
			return true
		}
	}
	return false
}

// IsCombine 是否包含 UNION 之类的子句
func (s *Statement) IsCombine() bool {
	return len(s.Combines) > 0
}

func (s *Statement) walk(fn func(st *Statement)) {
	fn(s)
	for _, c := range s.Combines {
		c.walk(fn)
	}
}

// Walk 依次访问自身以及 COMBINE 分支
func (s *Statement) Walk(fn func(st *Statement)) {
	s.walk(fn)
}
