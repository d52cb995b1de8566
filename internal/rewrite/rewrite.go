package rewrite

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/meoying/dbkernel/internal/rewrite/parameter"
	"github.com/meoying/dbkernel/internal/rewrite/sqltoken"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

// ExecutionUnit 发到一个物理数据源上执行的 SQL
type ExecutionUnit struct {
	DataSource string
	SQL        string
	Params     []any
	// Unit 生成这条 SQL 的路由单元
	Unit route.Unit
}

type Option func(e *Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

// WithSQLShow 打印改写之后的每一条 SQL
func WithSQLShow(show bool) Option {
	return func(e *Engine) {
		e.sqlShow = show
	}
}

// Engine 收集所有规则的 token，然后对每一个路由单元生成 SQL 和参数
type Engine struct {
	l       *slog.Logger
	sqlShow bool
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{l: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rewrite 返回的执行单元和路由单元一一对应，顺序相同
func (e *Engine) Rewrite(stmt *statement.Statement, params []any, rc *route.Context, rules []rule.Rule) ([]ExecutionUnit, error) {
	ctx := rule.NewRewriteContext(stmt, params, rc)
	for _, r := range rule.Resolve[rule.Rewriter](rules) {
		if err := r.Rewrite(ctx); err != nil {
			return nil, errors.Wrapf(err, "%s 规则 %s 改写失败", r.Kind(), r.Name())
		}
	}
	tokens := ctx.Tokens.Sorted()
	if err := sqltoken.Check(stmt.SQL, tokens); err != nil {
		return nil, err
	}
	res := make([]ExecutionUnit, 0, rc.Len())
	for _, u := range rc.Units() {
		eu := ExecutionUnit{
			DataSource: u.DataSource.ActualName,
			SQL:        sqltoken.Build(stmt.SQL, tokens, u),
			Params:     parameters(ctx, u),
			Unit:       u,
		}
		if e.sqlShow {
			e.l.Info("实际 SQL", slog.String("dataSource", eu.DataSource),
				slog.String("sql", eu.SQL), slog.Any("params", eu.Params))
		}
		res = append(res, eu)
	}
	return res, nil
}

// parameters VALUES 被改写过的时候每个单元只拿到路由到它的那些行的参数，
// 否则每个单元都拿到完整的参数
func parameters(ctx *rule.RewriteContext, u route.Unit) []any {
	switch b := ctx.Parameters.(type) {
	case *parameter.GroupedBuilder:
		if ctx.HasInsertValues() {
			return b.Parameters(ctx.InsertValues().RowsOf(u))
		}
		return b.AllParameters()
	case *parameter.StandardBuilder:
		return b.Parameters()
	}
	return ctx.Params
}

// GroupByDataSource 按照物理数据源分组，组内保持原来的顺序
func GroupByDataSource(units []ExecutionUnit) map[string][]ExecutionUnit {
	res := make(map[string][]ExecutionUnit, len(units))
	for _, u := range units {
		res[u.DataSource] = append(res[u.DataSource], u)
	}
	return res
}
