package executor

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/merge"
	"github.com/meoying/dbkernel/internal/rewrite"
	"github.com/meoying/dbkernel/internal/rows"
)

type Option func(e *Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

// Engine 把执行单元并发地发到各自的物理数据源上
type Engine struct {
	sources map[string]DataSource
	l       *slog.Logger
}

func NewEngine(sources map[string]DataSource, opts ...Option) *Engine {
	e := &Engine{sources: sources, l: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) find(name string) (DataSource, error) {
	ds, ok := e.sources[name]
	if !ok {
		return nil, errs.NewDataSourceNotFoundError(name)
	}
	return ds, nil
}

// Query 返回的结果集和执行单元一一对应。
// 任何一个单元失败都会关闭已经拿到的结果集
func (e *Engine) Query(ctx context.Context, units []rewrite.ExecutionUnit) ([]rows.Rows, error) {
	sources := make([]DataSource, 0, len(units))
	for _, u := range units {
		ds, err := e.find(u.DataSource)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	}
	res := make([]rows.Rows, len(units))
	// 结果集跟随调用方的 ctx，不能用 errgroup.WithContext
	var eg errgroup.Group
	for i, u := range units {
		ds := sources[i]
		eg.Go(func() error {
			rs, err := ds.Query(ctx, Query{SQL: u.SQL, Args: u.Params, DataSource: u.DataSource})
			if err != nil {
				e.l.Error("查询失败", slog.String("dataSource", u.DataSource), slog.String("sql", u.SQL), slog.Any("err", err))
				return err
			}
			res[i] = rs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		errList := []error{err}
		for _, r := range res {
			if r != nil {
				errList = append(errList, r.Close())
			}
		}
		return nil, multierr.Combine(errList...)
	}
	return res, nil
}

// Exec 所有单元都会执行完，错误合并在结果里面
func (e *Engine) Exec(ctx context.Context, units []rewrite.ExecutionUnit) merge.Result {
	errList := make([]error, len(units))
	resList := make([]sql.Result, len(units))
	var wg sync.WaitGroup
	for i, u := range units {
		ds, err := e.find(u.DataSource)
		if err != nil {
			errList[i] = err
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ds.Exec(ctx, Query{SQL: u.SQL, Args: u.Params, DataSource: u.DataSource})
			if err != nil {
				e.l.Error("执行失败", slog.String("dataSource", u.DataSource), slog.String("sql", u.SQL), slog.Any("err", err))
			}
			errList[i] = err
			resList[i] = res
		}()
	}
	wg.Wait()
	return merge.NewResult(resList, multierr.Combine(errList...))
}

// Close 关闭所有数据源
func (e *Engine) Close() error {
	var err error
	for _, ds := range e.sources {
		err = multierr.Append(err, ds.Close())
	}
	return err
}
