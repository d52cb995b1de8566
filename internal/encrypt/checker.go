package encrypt

import (
	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

// combineChecker UNION 之类的子句不能涉及加密表，
// 各个分支的列无法统一解密
type combineChecker struct {
	rule *Rule
}

func (*combineChecker) Name() string {
	return "encrypt-combine"
}

func (*combineChecker) IsCheck(stmt *statement.Statement) bool {
	return stmt.IsCombine()
}

func (c *combineChecker) Check(_ rule.Rule, _ rule.Grantee, _ *rule.Schema, stmt *statement.Statement) error {
	for _, name := range stmt.TableNames() {
		if _, ok := c.rule.table(name); ok {
			return errs.NewUnsupportedOperationError("COMBINE", "语句中包含加密表 "+name)
		}
	}
	return nil
}

// predicateChecker 加密列上不能有范围查询和 LIKE
type predicateChecker struct {
	rule *Rule
}

func (*predicateChecker) Name() string {
	return "encrypt-predicate"
}

func (c *predicateChecker) IsCheck(stmt *statement.Statement) bool {
	res := false
	stmt.Walk(func(st *statement.Statement) {
		res = res || len(st.Conditions) > 0
	})
	return res && c.rule.touches(stmt)
}

func (c *predicateChecker) Check(_ rule.Rule, _ rule.Grantee, _ *rule.Schema, stmt *statement.Statement) error {
	var err error
	stmt.Walk(func(st *statement.Statement) {
		for _, cond := range st.Conditions {
			for _, p := range cond.Predicates {
				if err != nil {
					return
				}
				if _, ok := c.rule.column(tableOf(st, p.Table, p.Owner), p.Column); ok && !supportedOperator(p.Op) {
					err = newUnsupportedPredicateError(p)
				}
			}
		}
	})
	return err
}
