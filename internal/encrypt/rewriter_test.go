package encrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rewrite/parameter"
	"github.com/meoying/dbkernel/internal/rewrite/sqltoken"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

func rewrite(t *testing.T, r *Rule, stmt *statement.Statement, params []any) (string, []any, error) {
	unit := route.NewUnit(route.Identity("ds_0"), route.Identity("t_user"))
	rc := rule.NewRewriteContext(stmt, params, route.NewBuilder().AddUnit(unit).Build())
	if err := r.Rewrite(rc); err != nil {
		return "", nil, err
	}
	tokens := rc.Tokens.Sorted()
	require.NoError(t, sqltoken.Check(stmt.SQL, tokens))
	sql := sqltoken.Build(stmt.SQL, tokens, unit)
	switch b := rc.Parameters.(type) {
	case *parameter.GroupedBuilder:
		return sql, b.Parameters(rc.InsertValues().RowsOf(unit)), nil
	case *parameter.StandardBuilder:
		return sql, b.Parameters(), nil
	}
	return sql, nil, nil
}

func userTable(sql string) []statement.Table {
	return []statement.Table{{Name: "t_user", Spans: []statement.Span{at(sql, "t_user", 0)}}}
}

func TestRule_Rewrite(t *testing.T) {
	r := newTestRule(t)
	testcases := []struct {
		name       string
		stmt       func() *statement.Statement
		params     []any
		wantSQL    func(t *testing.T) string
		wantParams func(t *testing.T) []any
		wantErr    error
	}{
		{
			name: "投影换成密文列_条件使用辅助查询列",
			stmt: func() *statement.Statement {
				sql := "SELECT pwd FROM t_user WHERE pwd = 'abc'"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindSelect,
					Tables: userTable(sql),
					Projections: []statement.Projection{
						{Column: "pwd", Span: at(sql, "pwd", 0), ColumnSpan: at(sql, "pwd", 0)},
					},
					Conditions: []statement.Condition{{Predicates: []statement.Predicate{{
						Table: "t_user", Column: "pwd", ColumnSpan: at(sql, "pwd", 1), Op: statement.OpEQ,
						Values: []statement.Value{statement.LiteralValue("abc", at(sql, "'abc'", 0))},
					}}}},
				}
			},
			wantSQL: func(t *testing.T) string {
				return "SELECT pwd_cipher AS pwd FROM t_user WHERE pwd_assisted = '" + md5Of(t, "abc") + "'"
			},
			wantParams: func(t *testing.T) []any {
				return []any{}
			},
		},
		{
			name: "有别名的投影只替换列名",
			stmt: func() *statement.Statement {
				sql := "SELECT phone AS p FROM t_user"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindSelect,
					Tables: userTable(sql),
					Projections: []statement.Projection{
						{Column: "phone", Alias: "p", Span: at(sql, "phone AS p", 0), ColumnSpan: at(sql, "phone", 0)},
					},
				}
			},
			wantSQL: func(t *testing.T) string {
				return "SELECT phone_cipher AS p FROM t_user"
			},
			wantParams: func(t *testing.T) []any {
				return []any{}
			},
		},
		{
			name: "占位符条件替换参数",
			stmt: func() *statement.Statement {
				sql := "SELECT id FROM t_user WHERE phone = ?"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindSelect,
					Tables: userTable(sql),
					Projections: []statement.Projection{
						{Column: "id", Span: at(sql, "id", 0), ColumnSpan: at(sql, "id", 0)},
					},
					Conditions: []statement.Condition{{Predicates: []statement.Predicate{{
						Table: "t_user", Column: "phone", ColumnSpan: at(sql, "phone", 0), Op: statement.OpEQ,
						Values: []statement.Value{statement.ParamValue(0, at(sql, "?", 0))},
					}}}},
				}
			},
			params: []any{"13800000000"},
			wantSQL: func(t *testing.T) string {
				return "SELECT id FROM t_user WHERE phone_cipher = ?"
			},
			wantParams: func(t *testing.T) []any {
				return []any{aesOf(t, "13800000000")}
			},
		},
		{
			name: "IN条件每个值都加密",
			stmt: func() *statement.Statement {
				sql := "SELECT id FROM t_user WHERE phone IN ('a', ?)"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindSelect,
					Tables: userTable(sql),
					Projections: []statement.Projection{
						{Column: "id", Span: at(sql, "id", 0), ColumnSpan: at(sql, "id", 0)},
					},
					Conditions: []statement.Condition{{Predicates: []statement.Predicate{{
						Table: "t_user", Column: "phone", ColumnSpan: at(sql, "phone", 0), Op: statement.OpIn,
						Values: []statement.Value{
							statement.LiteralValue("a", at(sql, "'a'", 0)),
							statement.ParamValue(0, at(sql, "?", 0)),
						},
					}}}},
				}
			},
			params: []any{"b"},
			wantSQL: func(t *testing.T) string {
				return "SELECT id FROM t_user WHERE phone_cipher IN ('" + aesOf(t, "a") + "', ?)"
			},
			wantParams: func(t *testing.T) []any {
				return []any{aesOf(t, "b")}
			},
		},
		{
			name: "UPDATE同时写入辅助查询列",
			stmt: func() *statement.Statement {
				sql := "UPDATE t_user SET pwd = ? WHERE id = ?"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindUpdate,
					Tables: userTable(sql),
					Assignments: []statement.Assignment{{
						Table: "t_user", Column: "pwd", ColumnSpan: at(sql, "pwd", 0),
						Value: statement.ParamValue(0, at(sql, "?", 0)),
					}},
					Conditions: []statement.Condition{{Predicates: []statement.Predicate{{
						Table: "t_user", Column: "id", ColumnSpan: at(sql, "id", 0), Op: statement.OpEQ,
						Values: []statement.Value{statement.ParamValue(1, at(sql, "?", 1))},
					}}}},
				}
			},
			params: []any{"secret", 1},
			wantSQL: func(t *testing.T) string {
				return "UPDATE t_user SET pwd_cipher = ?, pwd_assisted = ? WHERE id = ?"
			},
			wantParams: func(t *testing.T) []any {
				return []any{aesOf(t, "secret"), md5Of(t, "secret"), 1}
			},
		},
		{
			name: "UPDATE字面量",
			stmt: func() *statement.Statement {
				sql := "UPDATE t_user SET phone = '139' WHERE id = 1"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindUpdate,
					Tables: userTable(sql),
					Assignments: []statement.Assignment{{
						Table: "t_user", Column: "phone", ColumnSpan: at(sql, "phone", 0),
						Value: statement.LiteralValue("139", at(sql, "'139'", 0)),
					}},
				}
			},
			wantSQL: func(t *testing.T) string {
				return "UPDATE t_user SET phone_cipher = '" + aesOf(t, "139") + "' WHERE id = 1"
			},
			wantParams: func(t *testing.T) []any {
				return []any{}
			},
		},
		{
			name: "INSERT改写列名和每一行的值",
			stmt: func() *statement.Statement {
				sql := "INSERT INTO t_user (id, pwd) VALUES (?, ?), (2, 'b')"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindInsert,
					Insert: &statement.Insert{
						Table:       "t_user",
						Columns:     []string{"id", "pwd"},
						ColumnsSpan: statement.Span{Start: at(sql, "id", 0).Start, End: at(sql, "pwd", 0).End},
						Rows: []statement.InsertRow{
							{Values: []statement.Value{
								statement.ParamValue(0, at(sql, "?", 0)),
								statement.ParamValue(1, at(sql, "?", 1)),
							}},
							{Values: []statement.Value{
								statement.LiteralValue(int64(2), at(sql, "2", 0)),
								statement.LiteralValue("b", at(sql, "'b'", 0)),
							}},
						},
						ValuesSpan: statement.Span{Start: at(sql, "(?", 0).Start, End: len(sql)},
					},
				}
			},
			params: []any{1, "a"},
			wantSQL: func(t *testing.T) string {
				return "INSERT INTO t_user (id, pwd_cipher, pwd_assisted) VALUES (?, ?, ?), (2, '" +
					aesOf(t, "b") + "', '" + md5Of(t, "b") + "')"
			},
			wantParams: func(t *testing.T) []any {
				return []any{1, aesOf(t, "a"), md5Of(t, "a")}
			},
		},
		{
			name: "加密列上的范围查询",
			stmt: func() *statement.Statement {
				sql := "SELECT id FROM t_user WHERE phone > '1'"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindSelect,
					Tables: userTable(sql),
					Conditions: []statement.Condition{{Predicates: []statement.Predicate{{
						Table: "t_user", Column: "phone", ColumnSpan: at(sql, "phone", 0), Op: statement.OpGT,
						Values: []statement.Value{statement.LiteralValue("1", at(sql, "'1'", 0))},
					}}}},
				}
			},
			wantErr: errs.ErrUnsupportedOperation,
		},
		{
			name: "参数下标越界",
			stmt: func() *statement.Statement {
				sql := "SELECT id FROM t_user WHERE phone = ?"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindSelect,
					Tables: userTable(sql),
					Conditions: []statement.Condition{{Predicates: []statement.Predicate{{
						Table: "t_user", Column: "phone", ColumnSpan: at(sql, "phone", 0), Op: statement.OpEQ,
						Values: []statement.Value{statement.ParamValue(0, at(sql, "?", 0))},
					}}}},
				}
			},
			wantErr: errs.ErrParameterNotFound,
		},
		{
			name: "没有加密表不改写",
			stmt: func() *statement.Statement {
				sql := "SELECT phone FROM t_order WHERE phone = ?"
				return &statement.Statement{
					SQL: sql, Kind: statement.KindSelect,
					Tables: []statement.Table{{Name: "t_order", Spans: []statement.Span{at(sql, "t_order", 0)}}},
					Projections: []statement.Projection{
						{Column: "phone", Span: at(sql, "phone", 0), ColumnSpan: at(sql, "phone", 0)},
					},
					Conditions: []statement.Condition{{Predicates: []statement.Predicate{{
						Table: "t_order", Column: "phone", ColumnSpan: at(sql, "phone", 1), Op: statement.OpEQ,
						Values: []statement.Value{statement.ParamValue(0, at(sql, "?", 0))},
					}}}},
				}
			},
			params: []any{"1"},
			wantSQL: func(t *testing.T) string {
				return "SELECT phone FROM t_order WHERE phone = ?"
			},
			wantParams: func(t *testing.T) []any {
				return []any{"1"}
			},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			sql, params, err := rewrite(t, r, tc.stmt(), tc.params)
			assert.ErrorIs(t, err, tc.wantErr)
			if err != nil {
				return
			}
			assert.Equal(t, tc.wantSQL(t), sql)
			assert.Equal(t, tc.wantParams(t), params)
		})
	}
}
