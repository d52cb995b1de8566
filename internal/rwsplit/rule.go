package rwsplit

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/ecodeclub/ekit/slice"
	"github.com/ecodeclub/ekit/syncx"
	"golang.org/x/exp/maps"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/rwsplit/loadbalance"
	"github.com/meoying/dbkernel/internal/statement"
)

var (
	_ rule.RouteDecorator      = &Rule{}
	_ rule.DataSourceContainer = &Rule{}
)

type Option func(r *Rule)

func WithLogger(l *slog.Logger) Option {
	return func(r *Rule) {
		r.l = l
	}
}

// Rule 读写分离规则。组名是对外暴露的逻辑数据源，
// 读库的禁用状态会在运行时修改，所以放在并发安全的容器里
type Rule struct {
	name   string
	groups []*group
	l      *slog.Logger
}

type group struct {
	name     string
	write    string
	reads    []string
	strategy TransactionalReadQueryStrategy
	lb       loadbalance.Algorithm
	disabled syncx.Map[string, struct{}]
}

// enabledReads 先过滤掉被禁用的读库，再交给负载均衡算法
func (g *group) enabledReads() []string {
	return slice.FilterMap(g.reads, func(idx int, src string) (string, bool) {
		_, ok := g.disabled.Load(strings.ToLower(src))
		return src, !ok
	})
}

func NewRule(name string, cfg RuleConfiguration, opts ...Option) (*Rule, error) {
	if len(cfg.DataSourceGroups) == 0 {
		return nil, errs.NewInvalidConfigError("读写分离规则 %s 没有配置数据源组", name)
	}
	lbs, err := loadbalance.Algorithms.NewAll(cfg.LoadBalancers)
	if err != nil {
		return nil, err
	}
	r := &Rule{name: name, l: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	names := maps.Keys(cfg.DataSourceGroups)
	slices.Sort(names)
	for _, gn := range names {
		gc := cfg.DataSourceGroups[gn]
		if gc.WriteDataSourceName == "" {
			return nil, errs.NewInvalidConfigError("读写分离组 %s 没有配置写库", gn)
		}
		g := &group{
			name:     gn,
			write:    gc.WriteDataSourceName,
			reads:    slices.Clone(gc.ReadDataSourceNames),
			strategy: gc.TransactionalReadQueryStrategy,
		}
		if g.strategy == "" {
			g.strategy = TransactionalPrimary
		}
		if gc.LoadBalancerName == "" {
			g.lb = loadbalance.NewRoundRobin()
		} else if lb, ok := lbs[gc.LoadBalancerName]; ok {
			g.lb = lb
		} else {
			return nil, errs.NewInvalidConfigError("读写分离组 %s 引用的负载均衡算法 %s 不存在", gn, gc.LoadBalancerName)
		}
		r.groups = append(r.groups, g)
	}
	return r, nil
}

func (r *Rule) Kind() rule.Kind {
	return rule.KindReadwriteSplitting
}

func (r *Rule) Name() string {
	return r.name
}

func (r *Rule) group(name string) (*group, bool) {
	return slice.Find(r.groups, func(src *group) bool {
		return strings.EqualFold(src.name, name)
	})
}

// AggregatedDataSources 组名到写库加读库
func (r *Rule) AggregatedDataSources() map[string][]string {
	res := make(map[string][]string, len(r.groups))
	for _, g := range r.groups {
		res[g.name] = append([]string{g.write}, g.reads...)
	}
	return res
}

// Disable 禁用一个读库，之后的请求不会再路由到它上面
func (r *Rule) Disable(groupName, dataSource string) error {
	g, err := r.readMember(groupName, dataSource)
	if err != nil {
		return err
	}
	g.disabled.Store(strings.ToLower(dataSource), struct{}{})
	r.l.Info("禁用读库", slog.String("rule", r.name), slog.String("group", g.name), slog.String("dataSource", dataSource))
	return nil
}

func (r *Rule) Enable(groupName, dataSource string) error {
	g, err := r.readMember(groupName, dataSource)
	if err != nil {
		return err
	}
	g.disabled.Delete(strings.ToLower(dataSource))
	r.l.Info("启用读库", slog.String("rule", r.name), slog.String("group", g.name), slog.String("dataSource", dataSource))
	return nil
}

// EnabledReadDataSources 当前可用的读库，保持配置中的顺序
func (r *Rule) EnabledReadDataSources(groupName string) ([]string, error) {
	g, ok := r.group(groupName)
	if !ok {
		return nil, errs.NewInvalidConfigError("读写分离组 %s 不存在", groupName)
	}
	return g.enabledReads(), nil
}

func (r *Rule) readMember(groupName, dataSource string) (*group, error) {
	g, ok := r.group(groupName)
	if !ok {
		return nil, errs.NewInvalidConfigError("读写分离组 %s 不存在", groupName)
	}
	if !slices.ContainsFunc(g.reads, func(src string) bool { return strings.EqualFold(src, dataSource) }) {
		return nil, errs.NewInvalidConfigError("%s 不是读写分离组 %s 的读库", dataSource, groupName)
	}
	return g, nil
}

// DecorateRoute 把路由结果中的组名替换成真正执行的写库或者读库。
// 同一个请求里面同一个组只选择一次，保证多个路由单元落在同一个读库上
func (r *Rule) DecorateRoute(req *rule.RouteRequest, current *route.Context) (*route.Context, error) {
	builder := current.ToBuilder()
	chosen := make(map[string]string, len(r.groups))
	for i, u := range builder.Units() {
		g, ok := r.group(u.DataSource.ActualName)
		if !ok {
			continue
		}
		ds, ok := chosen[g.name]
		if !ok {
			ds = r.choose(g, req)
			chosen[g.name] = ds
		}
		builder.Units()[i].DataSource.ActualName = ds
	}
	return builder.Build(), nil
}

func (r *Rule) choose(g *group, req *rule.RouteRequest) string {
	if r.isPrimaryRoute(g, req) {
		return g.write
	}
	reads := g.enabledReads()
	if len(reads) == 0 {
		r.l.Warn("读写分离组没有可用的读库，使用写库",
			slog.String("rule", r.name), slog.String("group", g.name), slog.String("write", g.write))
		return g.write
	}
	return g.lb.Select(g.name, g.write, reads)
}

func (r *Rule) isPrimaryRoute(g *group, req *rule.RouteRequest) bool {
	stmt := req.Statement
	if stmt.Kind != statement.KindSelect || stmt.Hint.WriteRouteOnly {
		return true
	}
	return req.Connection.InTransaction && g.strategy == TransactionalPrimary
}
