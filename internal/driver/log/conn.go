package log

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"time"
)

// conn 只拦截查询、执行和预编译，其余方法交给底层连接。
// 底层连接没有实现的可选接口返回 driver.ErrSkip，由 database/sql 退回到默认的路径
type conn struct {
	driver.Conn
	dataSource string
	l          *slog.Logger
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	qc, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	rows, err := qc.QueryContext(ctx, query, args)
	c.log(ctx, "查询", query, args, start, err)
	return rows, err
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	ec, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	res, err := ec.ExecContext(ctx, query, args)
	c.log(ctx, "执行", query, args, start, err)
	return res, err
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	start := time.Now()
	var stmt driver.Stmt
	var err error
	if pc, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	c.log(ctx, "预编译", query, nil, start, err)
	return stmt, err
}

func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	if checker, ok := c.Conn.(driver.NamedValueChecker); ok {
		return checker.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

func (c *conn) Ping(ctx context.Context) error {
	if p, ok := c.Conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *conn) ResetSession(ctx context.Context) error {
	if r, ok := c.Conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *conn) IsValid() bool {
	if v, ok := c.Conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *conn) log(ctx context.Context, action, query string, args []driver.NamedValue, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("dataSource", c.dataSource),
		slog.String("sql", query),
		slog.Duration("cost", time.Since(start)),
	}
	if len(args) > 0 {
		vals := make([]any, 0, len(args))
		for _, a := range args {
			vals = append(vals, a.Value)
		}
		attrs = append(attrs, slog.Any("args", vals))
	}
	if err != nil {
		c.l.LogAttrs(ctx, slog.LevelError, action+"失败", append(attrs, slog.Any("err", err))...)
		return
	}
	c.l.LogAttrs(ctx, slog.LevelDebug, action, attrs...)
}
