package kernel

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/meoying/dbkernel/internal/audit"
	"github.com/meoying/dbkernel/internal/executor"
	"github.com/meoying/dbkernel/internal/merge"
	"github.com/meoying/dbkernel/internal/metrics"
	"github.com/meoying/dbkernel/internal/rewrite"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/router"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

var ErrNoExecutor = errors.New("kernel: 没有配置执行器")

type Option func(k *Kernel)

func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) {
		k.l = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(k *Kernel) {
		k.metrics = m
	}
}

// WithExecutor 没有执行器的时候只能生成执行计划
func WithExecutor(e *executor.Engine) Option {
	return func(k *Kernel) {
		k.executor = e
	}
}

// Kernel 审计 → 路由 → 改写 → 执行 → 归并。
// 每个请求开始的时候拿到当前的规则快照，之后整个请求都使用这一份
type Kernel struct {
	holder   *rule.Holder
	executor *executor.Engine
	metrics  *metrics.Metrics
	l        *slog.Logger

	audit        *audit.Engine
	router       *router.Engine
	rewriter     *rewrite.Engine
	showRewriter *rewrite.Engine
	merger       *merge.Engine
}

func New(holder *rule.Holder, opts ...Option) *Kernel {
	k := &Kernel{holder: holder, l: slog.Default()}
	for _, opt := range opts {
		opt(k)
	}
	k.audit = audit.NewEngine(audit.WithLogger(k.l))
	k.router = router.NewEngine(router.WithLogger(k.l))
	k.rewriter = rewrite.NewEngine(rewrite.WithLogger(k.l))
	k.showRewriter = rewrite.NewEngine(rewrite.WithLogger(k.l), rewrite.WithSQLShow(true))
	k.merger = merge.NewEngine(merge.WithLogger(k.l))
	return k
}

func (k *Kernel) Executor() *executor.Engine {
	return k.executor
}

type Request struct {
	Statement  *statement.Statement
	Params     []any
	Connection rule.Connection
}

// Plan 审计、路由、改写之后的执行计划
type Plan struct {
	Snapshot *rule.Snapshot
	Route    *route.Context
	Units    []rewrite.ExecutionUnit
}

// Prepare 生成执行计划，不会访问数据库
func (k *Kernel) Prepare(req Request) (*Plan, error) {
	snapshot := k.holder.Load()
	stmt := req.Statement

	start := time.Now()
	err := k.audit.Check(audit.Request{
		Statement: stmt,
		Grantee:   req.Connection.Grantee,
		Schema:    snapshot.Schema,
		Rules:     snapshot.Rules,
	})
	k.metrics.ObserveStage(metrics.StageAudit, start, err)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	rc, err := k.router.Route(&rule.RouteRequest{
		Statement:  stmt,
		Params:     req.Params,
		Connection: req.Connection,
	}, snapshot)
	k.metrics.ObserveStage(metrics.StageRoute, start, err)
	if err != nil {
		k.l.Error("路由失败", slog.String("sql", stmt.SQL), slog.Any("err", err))
		return nil, err
	}
	k.metrics.ObserveRouteUnits(rc.Len())

	start = time.Now()
	units, err := k.rewriterOf(snapshot).Rewrite(stmt, req.Params, rc, snapshot.Rules)
	k.metrics.ObserveStage(metrics.StageRewrite, start, err)
	if err != nil {
		k.l.Error("改写失败", slog.String("sql", stmt.SQL), slog.Any("err", err))
		return nil, err
	}
	k.l.Debug("执行计划", slog.String("kind", stmt.Kind.String()),
		slog.Any("tables", stmt.TableNames()), slog.Int("units", len(units)),
		slog.Uint64("generation", snapshot.Generation))
	return &Plan{Snapshot: snapshot, Route: rc, Units: units}, nil
}

// rewriterOf sql-show 是快照上的属性，配置变更之后跟着变
func (k *Kernel) rewriterOf(snapshot *rule.Snapshot) *rewrite.Engine {
	if snapshot.Props.SQLShow {
		return k.showRewriter
	}
	return k.rewriter
}

// Merge 外部执行层拿到各个单元的结果集之后调用，results 和 plan.Units 一一对应
func (k *Kernel) Merge(ctx context.Context, plan *Plan, req Request, results []rows.Rows) (rows.Rows, error) {
	start := time.Now()
	res, err := k.merger.Merge(ctx, &rule.MergeContext{
		Statement: req.Statement,
		Params:    req.Params,
		Route:     plan.Route,
	}, results, plan.Snapshot.Rules)
	k.metrics.ObserveStage(metrics.StageMerge, start, err)
	if err != nil {
		k.l.Error("归并失败", slog.String("sql", req.Statement.SQL), slog.Any("err", err))
	}
	return res, err
}

// Query 执行查询并且归并结果
func (k *Kernel) Query(ctx context.Context, req Request) (rows.Rows, error) {
	res, err := k.query(ctx, req)
	k.metrics.ObserveRequest(req.Statement.Kind.String(), err)
	return res, err
}

func (k *Kernel) query(ctx context.Context, req Request) (rows.Rows, error) {
	if k.executor == nil {
		return nil, ErrNoExecutor
	}
	plan, err := k.Prepare(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := k.executor.Query(ctx, plan.Units)
	k.metrics.ObserveStage(metrics.StageExecute, start, err)
	if err != nil {
		return nil, err
	}
	return k.Merge(ctx, plan, req, results)
}

// Exec 执行 DML 或者 DDL，影响行数是所有单元的和
func (k *Kernel) Exec(ctx context.Context, req Request) (sql.Result, error) {
	res, err := k.exec(ctx, req)
	k.metrics.ObserveRequest(req.Statement.Kind.String(), err)
	return res, err
}

func (k *Kernel) exec(ctx context.Context, req Request) (sql.Result, error) {
	if k.executor == nil {
		return nil, ErrNoExecutor
	}
	plan, err := k.Prepare(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res := k.executor.Exec(ctx, plan.Units)
	k.metrics.ObserveStage(metrics.StageExecute, start, res.Err())
	if err = res.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
