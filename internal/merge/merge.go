package merge

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/meoying/dbkernel/internal/merger/factory"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
)

var ErrEmptyResults = errors.New("merge: 没有任何结果集")

type Option func(e *Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

// Engine 先选出基础结果集，再按照规则顺序套上装饰器
type Engine struct {
	l *slog.Logger
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{l: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merge results 和路由单元一一对应。出错的时候所有结果集都会被关闭
func (e *Engine) Merge(ctx context.Context, mc *rule.MergeContext, results []rows.Rows, rules []rule.Rule) (rows.Rows, error) {
	if len(results) == 0 {
		return nil, ErrEmptyResults
	}
	res, err := e.base(ctx, mc, results, rules)
	if err != nil {
		return nil, err
	}
	for _, d := range rule.Resolve[rule.ResultDecorator](rules) {
		decorated, err := d.Decorate(mc, res)
		if err != nil {
			return nil, multierr.Combine(
				pkgerrors.Wrapf(err, "%s 规则 %s 装饰结果集失败", d.Kind(), d.Name()), res.Close())
		}
		res = decorated
	}
	return res, nil
}

func (e *Engine) base(ctx context.Context, mc *rule.MergeContext, results []rows.Rows, rules []rule.Rule) (rows.Rows, error) {
	for _, r := range rule.Resolve[rule.ResultMerger](rules) {
		m, ok, err := r.NewMerger(mc)
		if err != nil {
			return nil, closeAll(pkgerrors.Wrapf(err, "%s 规则 %s 创建归并器失败", r.Kind(), r.Name()), results)
		}
		if !ok {
			continue
		}
		e.l.Debug("归并", slog.String("kind", r.Kind().String()), slog.String("rule", r.Name()),
			slog.Int("results", len(results)))
		res, err := m.Merge(ctx, results)
		if err != nil {
			return nil, closeAll(pkgerrors.Wrapf(err, "%s 规则 %s 归并失败", r.Kind(), r.Name()), results)
		}
		return res, nil
	}
	// 没有规则接手的时候直接透传
	if len(results) == 1 {
		return results[0], nil
	}
	res, err := factory.NewBatchMerger().Merge(ctx, results)
	if err != nil {
		return nil, closeAll(err, results)
	}
	return res, nil
}

func closeAll(err error, results []rows.Rows) error {
	errList := []error{err}
	for _, r := range results {
		if r != nil {
			errList = append(errList, r.Close())
		}
	}
	return multierr.Combine(errList...)
}

// Result 多个路由单元的执行结果合并在一起
type Result struct {
	results []sql.Result
	err     error
}

// NewResult err 是执行过程中出现的错误，在读取结果的时候返回
func NewResult(results []sql.Result, err error) Result {
	return Result{results: results, err: err}
}

// LastInsertId 以最后一个单元的为准
func (r Result) LastInsertId() (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i] != nil {
			return r.results[i].LastInsertId()
		}
	}
	return 0, nil
}

// RowsAffected 所有单元的和
func (r Result) RowsAffected() (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	var sum int64
	for _, res := range r.results {
		if res == nil {
			continue
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		sum += n
	}
	return sum, nil
}

// Err 执行过程中的错误
func (r Result) Err() error {
	return r.err
}
