package encrypt

import (
	"fmt"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rewrite/sqltoken"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

// Rewrite 明文列换成密文列，明文值换成密文。
// 字面量通过 token 替换，占位符替换参数
func (r *Rule) Rewrite(rc *rule.RewriteContext) error {
	stmt := rc.Statement
	if !r.touches(stmt) {
		return nil
	}
	w := &rewriter{rule: r, rc: rc, seen: make(map[statement.Span]struct{}, 8)}
	if stmt.Insert != nil {
		if err := w.rewriteInsert(); err != nil {
			return err
		}
	}
	var err error
	stmt.Walk(func(st *statement.Statement) {
		if err != nil {
			return
		}
		w.rewriteProjections(st)
		if err = w.rewriteAssignments(st); err != nil {
			return
		}
		err = w.rewriteConditions(st)
	})
	return err
}

type rewriter struct {
	rule *Rule
	rc   *rule.RewriteContext
	// seen 析取范式里面同一个谓词可能出现在多个分组中，只改写一次
	seen map[statement.Span]struct{}
}

func (w *rewriter) substitute(sp statement.Span, text string) {
	if _, ok := w.seen[sp]; ok {
		return
	}
	w.seen[sp] = struct{}{}
	w.rc.Tokens.Add(sqltoken.NewSubstitution(sp, text))
}

func (w *rewriter) rewriteProjections(st *statement.Statement) {
	for _, p := range st.Projections {
		if p.IsStar() || p.AggregateFunc != "" {
			continue
		}
		col, ok := w.rule.column(tableOf(st, p.Table, p.Owner), p.Column)
		if !ok {
			continue
		}
		text := col.cipher
		if p.Alias == "" {
			text = fmt.Sprintf("%s AS %s", col.cipher, p.Column)
		}
		w.substitute(p.ColumnSpan, text)
	}
}

func (w *rewriter) rewriteConditions(st *statement.Statement) error {
	for _, c := range st.Conditions {
		for _, p := range c.Predicates {
			col, ok := w.rule.column(tableOf(st, p.Table, p.Owner), p.Column)
			if !ok {
				continue
			}
			if !supportedOperator(p.Op) {
				return newUnsupportedPredicateError(p)
			}
			name, alg := col.queryColumn()
			w.substitute(p.ColumnSpan, name)
			for _, v := range p.Values {
				if err := w.encryptValue(v, alg); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *rewriter) rewriteAssignments(st *statement.Statement) error {
	for _, a := range st.Assignments {
		col, ok := w.rule.column(tableOf(st, a.Table, ""), a.Column)
		if !ok {
			continue
		}
		w.substitute(a.ColumnSpan, col.cipher)
		if err := w.encryptValue(a.Value, col.encryptor); err != nil {
			return err
		}
		if col.assisted == "" {
			continue
		}
		digest, err := w.encrypt(a.Value, col.assistedEncryptor)
		if err != nil {
			return err
		}
		expr := "?"
		if a.Value.IsParam() {
			w.rc.Parameters.AddAfter(*a.Value.Param, digest)
		} else {
			expr = sqltoken.Literal(digest)
		}
		w.rc.Tokens.Add(sqltoken.NewInsertion(a.Value.Span.End, fmt.Sprintf(", %s = %s", col.assisted, expr)))
	}
	return nil
}

func (w *rewriter) rewriteInsert() error {
	insert := w.rc.Statement.Insert
	t, ok := w.rule.table(insert.Table)
	if !ok {
		return nil
	}
	var cols *sqltoken.InsertColumnsToken
	values := w.rc.InsertValues()
	grouped, hasGroup := w.rc.Grouped()
	for ci, name := range insert.Columns {
		col, ok := t.column(name)
		if !ok {
			continue
		}
		if cols == nil {
			var err error
			if cols, err = w.rc.InsertColumns(); err != nil {
				return err
			}
		}
		cols.Rename(name, col.cipher)
		if col.assisted != "" {
			cols.Append(col.assisted)
		}
		for i, row := range values.Rows() {
			v := insert.Rows[i].Values[ci]
			enc, err := w.encrypt(v, col.encryptor)
			if err != nil {
				return err
			}
			if v.IsParam() {
				w.rc.Parameters.Replace(*v.Param, enc)
			} else {
				row.Exprs[ci] = sqltoken.Literal(enc)
			}
			if col.assisted == "" {
				continue
			}
			digest, err := w.encrypt(v, col.assistedEncryptor)
			if err != nil {
				return err
			}
			if v.IsParam() && hasGroup {
				row.Exprs = append(row.Exprs, "?")
				grouped.AddToGroup(i, digest)
				continue
			}
			row.Exprs = append(row.Exprs, sqltoken.Literal(digest))
		}
	}
	return nil
}

func (w *rewriter) encrypt(v statement.Value, alg Algorithm) (any, error) {
	plain, err := v.Resolve(w.rc.Params)
	if err != nil {
		return nil, err
	}
	return alg.Encrypt(plain)
}

func (w *rewriter) encryptValue(v statement.Value, alg Algorithm) error {
	if _, ok := w.seen[v.Span]; ok && !v.IsParam() {
		return nil
	}
	enc, err := w.encrypt(v, alg)
	if err != nil {
		return err
	}
	if v.IsParam() {
		w.rc.Parameters.Replace(*v.Param, enc)
		return nil
	}
	w.substitute(v.Span, sqltoken.Literal(enc))
	return nil
}

// supportedOperator 密文只能做等值比较
func supportedOperator(op statement.Operator) bool {
	switch op {
	case statement.OpEQ, statement.OpNEQ, statement.OpIn, statement.OpNotIn:
		return true
	}
	return false
}

func newUnsupportedPredicateError(p statement.Predicate) error {
	return errs.NewUnsupportedOperationError(string(p.Op),
		fmt.Sprintf("加密列 %s 只支持等值查询", p.Column))
}
