package shadow

import (
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

var (
	_ rule.RouteDecorator      = &Rule{}
	_ rule.DataSourceContainer = &Rule{}
	_ rule.ResultMerger        = &Rule{}
)

type Option func(r *Rule)

func WithLogger(l *slog.Logger) Option {
	return func(r *Rule) {
		r.l = l
	}
}

type dataSource struct {
	name       string
	production string
	shadow     string
}

type table struct {
	name        string
	dataSources []*dataSource
	columns     []ColumnAlgorithm
	hints       []HintAlgorithm
}

// Rule 影子库规则，只调整数据源，不改写 SQL
type Rule struct {
	name        string
	dataSources []*dataSource
	tables      map[string]*table
	defaultHint HintAlgorithm
	l           *slog.Logger
}

func NewRule(name string, cfg RuleConfiguration, opts ...Option) (*Rule, error) {
	if len(cfg.DataSources) == 0 {
		return nil, errs.NewInvalidConfigError("影子库规则 %s 没有配置数据源", name)
	}
	algs, err := Algorithms.NewAll(cfg.ShadowAlgorithms)
	if err != nil {
		return nil, err
	}
	r := &Rule{name: name, tables: make(map[string]*table, len(cfg.Tables)), l: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	dsNames := maps.Keys(cfg.DataSources)
	slices.Sort(dsNames)
	for _, n := range dsNames {
		dc := cfg.DataSources[n]
		if dc.ProductionDataSourceName == "" || dc.ShadowDataSourceName == "" {
			return nil, errs.NewInvalidConfigError("影子数据源 %s 必须同时配置生产库和影子库", n)
		}
		r.dataSources = append(r.dataSources, &dataSource{
			name: n, production: dc.ProductionDataSourceName, shadow: dc.ShadowDataSourceName,
		})
	}
	for tn, tc := range cfg.Tables {
		t, err := r.newTable(tn, tc, algs)
		if err != nil {
			return nil, err
		}
		r.tables[strings.ToLower(tn)] = t
	}
	if cfg.DefaultShadowAlgorithmName != "" {
		alg, ok := algs[cfg.DefaultShadowAlgorithmName]
		if !ok {
			return nil, errs.NewInvalidConfigError("默认影子算法 %s 不存在", cfg.DefaultShadowAlgorithmName)
		}
		hint, ok := alg.(HintAlgorithm)
		if !ok {
			return nil, errs.NewInvalidConfigError("默认影子算法 %s 必须是 hint 类型", cfg.DefaultShadowAlgorithmName)
		}
		r.defaultHint = hint
	}
	return r, nil
}

func (r *Rule) newTable(name string, cfg TableConfiguration, algs map[string]Algorithm) (*table, error) {
	t := &table{name: name}
	for _, dn := range cfg.DataSourceNames {
		ds, ok := r.dataSource(dn)
		if !ok {
			return nil, errs.NewInvalidConfigError("影子表 %s 引用的影子数据源 %s 不存在", name, dn)
		}
		t.dataSources = append(t.dataSources, ds)
	}
	if len(t.dataSources) == 0 {
		t.dataSources = r.dataSources
	}
	for _, an := range cfg.ShadowAlgorithmNames {
		alg, ok := algs[an]
		if !ok {
			return nil, errs.NewInvalidConfigError("影子表 %s 引用的影子算法 %s 不存在", name, an)
		}
		switch a := alg.(type) {
		case ColumnAlgorithm:
			t.columns = append(t.columns, a)
		case HintAlgorithm:
			t.hints = append(t.hints, a)
		}
	}
	return t, nil
}

func (r *Rule) dataSource(name string) (*dataSource, bool) {
	for _, ds := range r.dataSources {
		if strings.EqualFold(ds.name, name) {
			return ds, true
		}
	}
	return nil, false
}

func (r *Rule) Kind() rule.Kind {
	return rule.KindShadow
}

func (r *Rule) Name() string {
	return r.name
}

// AggregatedDataSources 影子数据源名到生产库和影子库
func (r *Rule) AggregatedDataSources() map[string][]string {
	res := make(map[string][]string, len(r.dataSources))
	for _, ds := range r.dataSources {
		res[ds.name] = []string{ds.production, ds.shadow}
	}
	return res
}

// DecorateRoute 影子流量路由到影子库，其余的路由到生产库。
// 路由单元上的数据源可能是影子数据源名，也可能已经被前面的规则换成了生产库
func (r *Rule) DecorateRoute(req *rule.RouteRequest, current *route.Context) (*route.Context, error) {
	shadows := r.shadowDataSources(req)
	builder := current.ToBuilder()
	for i, u := range builder.Units() {
		for _, ds := range r.dataSources {
			if !strings.EqualFold(u.DataSource.ActualName, ds.name) && !strings.EqualFold(u.DataSource.ActualName, ds.production) {
				continue
			}
			actual := ds.production
			if slices.Contains(shadows, ds) {
				actual = ds.shadow
			}
			builder.Units()[i].DataSource.ActualName = actual
			break
		}
	}
	if len(shadows) > 0 {
		r.l.Debug("影子流量", slog.String("rule", r.name), slog.Int("dataSources", len(shadows)))
	}
	return builder.Build(), nil
}

// shadowDataSources 语句是影子流量时需要切换的影子数据源
func (r *Rule) shadowDataSources(req *rule.RouteRequest) []*dataSource {
	stmt := req.Statement
	var res []*dataSource
	matched := false
	for _, name := range stmt.TableNames() {
		t, ok := r.tables[strings.ToLower(name)]
		if !ok {
			continue
		}
		matched = true
		if !t.isShadow(stmt, req.Params) {
			continue
		}
		for _, ds := range t.dataSources {
			if !slices.Contains(res, ds) {
				res = append(res, ds)
			}
		}
	}
	if !matched && r.defaultHint != nil && r.defaultHint.IsShadow(stmt.Hint) {
		return r.dataSources
	}
	return res
}

func (t *table) isShadow(stmt *statement.Statement, params []any) bool {
	for _, h := range t.hints {
		if h.IsShadow(stmt.Hint) {
			return true
		}
	}
	for _, c := range t.columns {
		if c.Operation() != stmt.Kind {
			continue
		}
		groups := columnValues(stmt, t.name, c.Column(), params)
		for _, values := range groups {
			if allShadow(c, t.name, values) {
				return true
			}
		}
	}
	return false
}

// allShadow 一组值全部命中才算影子流量
func allShadow(alg ColumnAlgorithm, table string, values []ColumnValue) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if !alg.IsShadow(table, v) {
			return false
		}
	}
	return true
}
