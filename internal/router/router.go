package router

import (
	"log/slog"
	"strings"

	"github.com/ecodeclub/ekit/slice"
	"github.com/pkg/errors"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

type Option func(e *Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

// Engine 路由引擎。需要看到所有物理库的语句走全路由，其余的语句依次交给各个规则收窄
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

// Route req.DataSources 为空的时候使用快照里面的逻辑数据源。req 本身不会被修改
func (e *Engine) Route(in *rule.RouteRequest, snapshot *rule.Snapshot) (*route.Context, error) {
	req := *in
	if len(req.DataSources) == 0 {
		req.DataSources = snapshot.LogicDataSources
	}
	if req.DefaultDataSource == "" {
		req.DefaultDataSource = snapshot.DefaultDataSource
	}
	return e.route(&req, snapshot)
}

func (e *Engine) route(req *rule.RouteRequest, snapshot *rule.Snapshot) (*route.Context, error) {
	stmt := req.Statement
	if needAllRoute(stmt) {
		res, err := allRoute(snapshot.DataSources)
		if err != nil {
			return nil, err
		}
		e.l.Debug("全路由", slog.Int("units", res.Len()))
		return res, nil
	}
	if err := checkMismatch(stmt, snapshot.Rules); err != nil {
		return nil, err
	}
	var (
		current *route.Context
		err     error
	)
	for _, r := range rule.Resolve[rule.Router](snapshot.Rules) {
		current, err = r.Route(req, current)
		if err != nil {
			return nil, errors.Wrapf(err, "%s 规则 %s 路由失败", r.Kind(), r.Name())
		}
	}
	current, err = fillUnmanaged(req, snapshot.Rules, current)
	if err != nil {
		return nil, err
	}
	for _, d := range rule.Resolve[rule.RouteDecorator](snapshot.Rules) {
		current, err = d.DecorateRoute(req, current)
		if err != nil {
			return nil, errors.Wrapf(err, "%s 规则 %s 路由失败", d.Kind(), d.Name())
		}
	}
	if err = checkCompleteness(stmt, current); err != nil {
		return nil, err
	}
	e.l.Debug("路由完成", slog.Any("tables", stmt.TableNames()),
		slog.Any("units", slice.Map(current.Units(), func(idx int, src route.Unit) string {
			return src.String()
		})))
	return current, nil
}

// needAllRoute 例如 SHOW TABLES，不管规则怎么配置都要看到每一个物理库
func needAllRoute(stmt *statement.Statement) bool {
	return stmt.Kind == statement.KindDAL && (stmt.DAL == statement.DALShowTables || stmt.DAL == statement.DALShowDatabases)
}

func allRoute(dataSources []string) (*route.Context, error) {
	if len(dataSources) == 0 {
		return nil, errs.NewNoRouteTargetError("*")
	}
	b := route.NewBuilder().SetNeedAllSchemas(true)
	for _, ds := range dataSources {
		b.AddUnit(route.NewUnit(route.Identity(ds)))
	}
	return b.Build(), nil
}

// checkMismatch 同一张逻辑表被两个规则声明成了不同的形态
func checkMismatch(stmt *statement.Statement, rules []rule.Rule) error {
	containers := rule.Resolve[rule.DataNodeContainer](rules)
	if len(containers) < 2 {
		return nil
	}
	for _, table := range stmt.TableNames() {
		var (
			kind  rule.TableKind
			names []string
			found bool
		)
		for _, c := range containers {
			k, ok := c.TableKind(table)
			if !ok {
				continue
			}
			names = append(names, c.Name())
			if found && k != kind {
				return errs.NewRuleMismatchError(table, names...)
			}
			kind, found = k, true
		}
	}
	return nil
}

// unmanagedTables 没有被任何数据节点类规则管理的表
func unmanagedTables(stmt *statement.Statement, rules []rule.Rule) []string {
	containers := rule.Resolve[rule.DataNodeContainer](rules)
	return slice.FilterMap(stmt.TableNames(), func(idx int, src string) (string, bool) {
		for _, c := range containers {
			if _, ok := c.TableKind(src); ok {
				return "", false
			}
		}
		return src, true
	})
}

// fillUnmanaged 没有被管理的表映射到自身。
// 没有任何规则给出路由结果的时候，整条语句发到默认数据源
func fillUnmanaged(req *rule.RouteRequest, rules []rule.Rule, current *route.Context) (*route.Context, error) {
	tables := unmanagedTables(req.Statement, rules)
	mappers := slice.Map(tables, func(idx int, src string) route.Mapper {
		return route.Identity(src)
	})
	if current.IsEmpty() {
		if req.DefaultDataSource == "" {
			return nil, errs.NewNoRouteTargetError(strings.Join(req.Statement.TableNames(), ","))
		}
		return current.ToBuilder().
			SetUnits([]route.Unit{route.NewUnit(route.Identity(req.DefaultDataSource), mappers...)}).
			Build(), nil
	}
	if len(mappers) == 0 {
		return current, nil
	}
	b := current.ToBuilder()
	units := b.Units()
	for i := range units {
		for _, m := range mappers {
			if !units[i].HasLogicTable(m.LogicName) {
				units[i].Tables = append(units[i].Tables, m)
			}
		}
	}
	return b.Build(), nil
}

// checkCompleteness 每一张引用到的逻辑表至少出现在一个路由单元里面
func checkCompleteness(stmt *statement.Statement, c *route.Context) error {
	if c.IsEmpty() {
		return errs.NewNoRouteTargetError(strings.Join(stmt.TableNames(), ","))
	}
	for _, t := range stmt.TableNames() {
		if !c.ContainsTable(t) {
			return errs.NewNoRouteTargetError(t)
		}
	}
	return nil
}
