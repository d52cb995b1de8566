package log

import (
	"context"
	"database/sql/driver"
	"log/slog"
)

type Option func(c *connector)

func WithLogger(l *slog.Logger) Option {
	return func(c *connector) {
		c.l = l
	}
}

// WithDataSource 日志里面带上物理数据源的名字
func WithDataSource(name string) Option {
	return func(c *connector) {
		c.dataSource = name
	}
}

// NewConnector 包装驱动，在 Debug 级别输出发往物理数据源的 SQL。
// 驱动没有实现 DriverContext 的时候每次连接都调用 Open，例如 SQLite3
func NewConnector(d driver.Driver, dsn string, opts ...Option) (driver.Connector, error) {
	c := &connector{l: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if dc, ok := d.(driver.DriverContext); ok {
		inner, err := dc.OpenConnector(dsn)
		if err != nil {
			c.l.Error("创建连接器失败", slog.String("dataSource", c.dataSource), slog.Any("err", err))
			return nil, err
		}
		c.Connector = inner
		return c, nil
	}
	c.Connector = dsnConnector{dsn: dsn, driver: d}
	return c, nil
}

type connector struct {
	driver.Connector
	dataSource string
	l          *slog.Logger
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	cn, err := c.Connector.Connect(ctx)
	if err != nil {
		c.l.ErrorContext(ctx, "连接物理数据源失败", slog.String("dataSource", c.dataSource), slog.Any("err", err))
		return nil, err
	}
	return &conn{Conn: cn, dataSource: c.dataSource, l: c.l}, nil
}

type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c dsnConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver {
	return c.driver
}
