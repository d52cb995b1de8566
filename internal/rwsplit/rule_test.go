package rwsplit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/rwsplit/loadbalance"
	lbmocks "github.com/meoying/dbkernel/internal/rwsplit/loadbalance/mocks"
	"github.com/meoying/dbkernel/internal/statement"
)

func testConfig(lbName string) RuleConfiguration {
	cfg := RuleConfiguration{
		DataSourceGroups: map[string]DataSourceGroupConfiguration{
			"group_0": {
				WriteDataSourceName: "write_ds",
				ReadDataSourceNames: []string{"read_ds_0", "read_ds_1"},
				LoadBalancerName:    lbName,
			},
		},
	}
	if lbName != "" {
		cfg.LoadBalancers = map[string]base.Configuration{lbName: {Type: "TEST_MOCK"}}
	}
	return cfg
}

// newMockRule 每次注册一个新的 mock 算法
func newMockRule(t *testing.T, ctrl *gomock.Controller) (*Rule, *lbmocks.MockAlgorithm) {
	lb := lbmocks.NewMockAlgorithm(ctrl)
	loadbalance.Algorithms.Register("TEST_MOCK", func(*base.Props) (loadbalance.Algorithm, error) {
		return lb, nil
	})
	r, err := NewRule("rw", testConfig("mock"))
	require.NoError(t, err)
	return r, lb
}

func units(names ...string) *route.Context {
	b := route.NewBuilder()
	for _, n := range names {
		b.AddUnit(route.NewUnit(route.Identity(n), route.Identity("t_user")))
	}
	return b.Build()
}

func actualNames(ctx *route.Context) []string {
	res := make([]string, 0, ctx.Len())
	for _, u := range ctx.Units() {
		res = append(res, u.DataSource.ActualName)
	}
	return res
}

func TestRule_DecorateRoute(t *testing.T) {
	reads := []string{"read_ds_0", "read_ds_1"}
	testcases := []struct {
		name     string
		mock     func(lb *lbmocks.MockAlgorithm)
		disabled []string
		req      *rule.RouteRequest
		current  *route.Context
		wantRes  []string
	}{
		{
			name: "查询走读库",
			mock: func(lb *lbmocks.MockAlgorithm) {
				lb.EXPECT().Select("group_0", "write_ds", reads).Return("read_ds_1")
			},
			req:     &rule.RouteRequest{Statement: &statement.Statement{Kind: statement.KindSelect}},
			current: units("group_0"),
			wantRes: []string{"read_ds_1"},
		},
		{
			name:    "写请求走写库",
			req:     &rule.RouteRequest{Statement: &statement.Statement{Kind: statement.KindInsert}},
			current: units("group_0"),
			wantRes: []string{"write_ds"},
		},
		{
			name: "强制走写库",
			req: &rule.RouteRequest{Statement: &statement.Statement{
				Kind: statement.KindSelect, Hint: statement.Hint{WriteRouteOnly: true},
			}},
			current: units("group_0"),
			wantRes: []string{"write_ds"},
		},
		{
			name: "事务中的查询走写库",
			req: &rule.RouteRequest{
				Statement:  &statement.Statement{Kind: statement.KindSelect},
				Connection: rule.Connection{InTransaction: true},
			},
			current: units("group_0"),
			wantRes: []string{"write_ds"},
		},
		{
			name: "禁用的读库在负载均衡之前过滤掉",
			mock: func(lb *lbmocks.MockAlgorithm) {
				lb.EXPECT().Select("group_0", "write_ds", []string{"read_ds_1"}).Return("read_ds_1")
			},
			disabled: []string{"read_ds_0"},
			req:      &rule.RouteRequest{Statement: &statement.Statement{Kind: statement.KindSelect}},
			current:  units("group_0"),
			wantRes:  []string{"read_ds_1"},
		},
		{
			name:     "读库全部禁用走写库",
			disabled: []string{"read_ds_0", "READ_DS_1"},
			req:      &rule.RouteRequest{Statement: &statement.Statement{Kind: statement.KindSelect}},
			current:  units("group_0"),
			wantRes:  []string{"write_ds"},
		},
		{
			name: "同一个组只选一次",
			mock: func(lb *lbmocks.MockAlgorithm) {
				lb.EXPECT().Select("group_0", "write_ds", reads).Return("read_ds_0").Times(1)
			},
			req:     &rule.RouteRequest{Statement: &statement.Statement{Kind: statement.KindSelect}},
			current: units("group_0", "group_0"),
			wantRes: []string{"read_ds_0", "read_ds_0"},
		},
		{
			name:    "不是读写分离组的数据源",
			req:     &rule.RouteRequest{Statement: &statement.Statement{Kind: statement.KindSelect}},
			current: units("ds_other"),
			wantRes: []string{"ds_other"},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			r, lb := newMockRule(t, ctrl)
			if tc.mock != nil {
				tc.mock(lb)
			}
			for _, ds := range tc.disabled {
				require.NoError(t, r.Disable("group_0", ds))
			}
			res, err := r.DecorateRoute(tc.req, tc.current)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRes, actualNames(res))
			// 原来的路由结果不受影响
			assert.Equal(t, tc.current.Unit(0).DataSource.LogicName, res.Unit(0).DataSource.LogicName)
		})
	}
}

func TestRule_EnabledReadDataSources(t *testing.T) {
	r, err := NewRule("rw", testConfig(""))
	require.NoError(t, err)
	require.NoError(t, r.Disable("group_0", "read_ds_0"))
	reads, err := r.EnabledReadDataSources("group_0")
	require.NoError(t, err)
	assert.Equal(t, []string{"read_ds_1"}, reads)

	require.NoError(t, r.Enable("GROUP_0", "read_ds_0"))
	reads, err = r.EnabledReadDataSources("group_0")
	require.NoError(t, err)
	assert.Equal(t, []string{"read_ds_0", "read_ds_1"}, reads)

	assert.ErrorIs(t, r.Disable("group_0", "write_ds"), errs.ErrInvalidConfig)
	assert.ErrorIs(t, r.Enable("group_1", "read_ds_0"), errs.ErrInvalidConfig)
	_, err = r.EnabledReadDataSources("group_1")
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestRule_RoundRobinByDefault(t *testing.T) {
	r, err := NewRule("rw", testConfig(""))
	require.NoError(t, err)
	req := &rule.RouteRequest{Statement: &statement.Statement{Kind: statement.KindSelect}}
	var res []string
	for i := 0; i < 4; i++ {
		ctx, err := r.DecorateRoute(req, units("group_0"))
		require.NoError(t, err)
		res = append(res, actualNames(ctx)...)
	}
	assert.Equal(t, []string{"read_ds_0", "read_ds_1", "read_ds_0", "read_ds_1"}, res)
	assert.Equal(t, map[string][]string{"group_0": {"write_ds", "read_ds_0", "read_ds_1"}}, r.AggregatedDataSources())
	assert.Equal(t, rule.KindReadwriteSplitting, r.Kind())
	assert.Equal(t, "rw", r.Name())
}

func TestNewRule(t *testing.T) {
	testcases := []struct {
		name    string
		cfg     RuleConfiguration
		wantErr error
	}{
		{
			name:    "没有数据源组",
			cfg:     RuleConfiguration{},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name: "没有写库",
			cfg: RuleConfiguration{DataSourceGroups: map[string]DataSourceGroupConfiguration{
				"g": {ReadDataSourceNames: []string{"r"}},
			}},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name: "负载均衡算法不存在",
			cfg: RuleConfiguration{DataSourceGroups: map[string]DataSourceGroupConfiguration{
				"g": {WriteDataSourceName: "w", LoadBalancerName: "missing"},
			}},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name: "负载均衡算法类型未知",
			cfg: RuleConfiguration{
				DataSourceGroups: map[string]DataSourceGroupConfiguration{"g": {WriteDataSourceName: "w"}},
				LoadBalancers:    map[string]base.Configuration{"lb": {Type: "UNKNOWN"}},
			},
			wantErr: errs.ErrInvalidConfig,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRule("rw", tc.cfg)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestTransactionalReadQueryStrategy_UnmarshalText(t *testing.T) {
	var s TransactionalReadQueryStrategy
	require.NoError(t, s.UnmarshalText([]byte(" dynamic ")))
	assert.Equal(t, TransactionalDynamic, s)
	assert.ErrorIs(t, s.UnmarshalText([]byte("FIXED")), errs.ErrInvalidConfig)
}
