package merge

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/sharding"
	"github.com/meoying/dbkernel/internal/statement"
)

// suffixDecorator 给每一个字符串值追加后缀，用来观察装饰器的顺序
type suffixDecorator struct {
	kind   rule.Kind
	suffix string
	err    error
}

func (d suffixDecorator) Kind() rule.Kind {
	return d.kind
}

func (d suffixDecorator) Name() string {
	return d.suffix
}

func (d suffixDecorator) Decorate(_ *rule.MergeContext, r rows.Rows) (rows.Rows, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &suffixRows{Rows: r, suffix: d.suffix}, nil
}

type suffixRows struct {
	rows.Rows
	suffix string
}

func (s *suffixRows) Scan(dest ...any) error {
	if err := s.Rows.Scan(dest...); err != nil {
		return err
	}
	for _, d := range dest {
		if p, ok := d.(*any); ok {
			if str, ok := (*p).(string); ok {
				*p = str + s.suffix
			}
		}
	}
	return nil
}

type mergerFunc func(ctx context.Context, results []rows.Rows) (rows.Rows, error)

func (f mergerFunc) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	return f(ctx, results)
}

// stubMerger accept 为 false 的时候不接手
type stubMerger struct {
	kind   rule.Kind
	accept bool
	m      merger.Merger
	err    error
}

func (s stubMerger) Kind() rule.Kind {
	return s.kind
}

func (stubMerger) Name() string {
	return "stub"
}

func (s stubMerger) NewMerger(*rule.MergeContext) (merger.Merger, bool, error) {
	return s.m, s.accept, s.err
}

// closeRows 记录有没有被关闭
type closeRows struct {
	*rows.MemoryRows
	closed bool
}

func (c *closeRows) Close() error {
	c.closed = true
	return c.MemoryRows.Close()
}

func memory(vals ...any) rows.Rows {
	data := make([][]any, 0, len(vals))
	for _, v := range vals {
		data = append(data, []any{v})
	}
	return rows.NewMemoryRows([]string{"name"}, nil, data)
}

func selectContext() *rule.MergeContext {
	return &rule.MergeContext{Statement: &statement.Statement{SQL: "SELECT name FROM t_user", Kind: statement.KindSelect}}
}

func TestEngine_Merge(t *testing.T) {
	errStub := errors.New("stub")
	testcases := []struct {
		name    string
		results func() []rows.Rows
		rules   []rule.Rule
		wantRes [][]any
		wantErr error
	}{
		{
			name:    "单个结果集直接透传",
			results: func() []rows.Rows { return []rows.Rows{memory("a", "b")} },
			wantRes: [][]any{{"a"}, {"b"}},
		},
		{
			name:    "多个结果集没有规则接手_首尾相连",
			results: func() []rows.Rows { return []rows.Rows{memory("a"), memory("b", "c")} },
			wantRes: [][]any{{"a"}, {"b"}, {"c"}},
		},
		{
			name:    "第一个接手的规则作为基础结果集",
			results: func() []rows.Rows { return []rows.Rows{memory("a"), memory("b")} },
			rules: []rule.Rule{
				stubMerger{kind: rule.KindShadow, accept: true, m: mergerFunc(func(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
					return memory("shadow"), nil
				})},
				stubMerger{kind: rule.KindSharding, accept: false},
				stubMerger{kind: rule.KindEncrypt, accept: true, m: mergerFunc(func(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
					return memory("encrypt"), nil
				})},
			},
			wantRes: [][]any{{"shadow"}},
		},
		{
			name:    "装饰器按照规则顺序从内到外",
			results: func() []rows.Rows { return []rows.Rows{memory("a")} },
			rules: []rule.Rule{
				suffixDecorator{kind: rule.KindMask, suffix: "-mask"},
				suffixDecorator{kind: rule.KindEncrypt, suffix: "-encrypt"},
			},
			wantRes: [][]any{{"a-encrypt-mask"}},
		},
		{
			name:    "没有结果集",
			results: func() []rows.Rows { return nil },
			wantErr: ErrEmptyResults,
		},
		{
			name:    "创建归并器失败",
			results: func() []rows.Rows { return []rows.Rows{memory("a")} },
			rules:   []rule.Rule{stubMerger{kind: rule.KindSharding, err: errStub}},
			wantErr: errStub,
		},
		{
			name:    "归并失败",
			results: func() []rows.Rows { return []rows.Rows{memory("a")} },
			rules: []rule.Rule{stubMerger{kind: rule.KindSharding, accept: true, m: mergerFunc(func(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
				return nil, errStub
			})}},
			wantErr: errStub,
		},
		{
			name:    "装饰失败",
			results: func() []rows.Rows { return []rows.Rows{memory("a")} },
			rules:   []rule.Rule{suffixDecorator{kind: rule.KindMask, err: errStub}},
			wantErr: errStub,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := NewEngine().Merge(context.Background(), selectContext(), tc.results(), tc.rules)
			assert.ErrorIs(t, err, tc.wantErr)
			if err != nil {
				return
			}
			data, err := rows.ReadAll(res)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRes, data)
		})
	}
}

func TestEngine_Merge_CloseOnError(t *testing.T) {
	errStub := errors.New("stub")
	t.Run("创建归并器失败关闭所有结果集", func(t *testing.T) {
		results := []*closeRows{
			{MemoryRows: rows.NewMemoryRows([]string{"name"}, nil, nil)},
			{MemoryRows: rows.NewMemoryRows([]string{"name"}, nil, nil)},
		}
		_, err := NewEngine().Merge(context.Background(), selectContext(),
			[]rows.Rows{results[0], results[1]}, []rule.Rule{stubMerger{kind: rule.KindSharding, err: errStub}})
		require.ErrorIs(t, err, errStub)
		assert.True(t, results[0].closed)
		assert.True(t, results[1].closed)
	})
	t.Run("归并失败关闭所有结果集", func(t *testing.T) {
		results := []*closeRows{
			{MemoryRows: rows.NewMemoryRows([]string{"name"}, nil, [][]any{{"a"}})},
			{MemoryRows: rows.NewMemoryRows([]string{"name"}, nil, [][]any{{"b"}})},
		}
		m := mergerFunc(func(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
			return nil, context.DeadlineExceeded
		})
		_, err := NewEngine().Merge(context.Background(), selectContext(),
			[]rows.Rows{results[0], results[1]}, []rule.Rule{stubMerger{kind: rule.KindSharding, accept: true, m: m}})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "归并失败")
		assert.True(t, results[0].closed)
		assert.True(t, results[1].closed)
	})
	t.Run("装饰失败关闭基础结果集", func(t *testing.T) {
		r := &closeRows{MemoryRows: rows.NewMemoryRows([]string{"name"}, nil, [][]any{{"a"}})}
		_, err := NewEngine().Merge(context.Background(), selectContext(),
			[]rows.Rows{r}, []rule.Rule{suffixDecorator{kind: rule.KindMask, err: errStub}})
		require.ErrorIs(t, err, errStub)
		assert.Contains(t, err.Error(), "装饰结果集失败")
		assert.True(t, r.closed)
	})
}

func TestMergeEngine(t *testing.T) {
	suite.Run(t, &mergeTestSuite{})
}

// mergeTestSuite 物理数据源的结果集由 sqlmock 提供
type mergeTestSuite struct {
	suite.Suite
	dbs   []*sql.DB
	mocks []sqlmock.Sqlmock
}

func (s *mergeTestSuite) SetupTest() {
	s.dbs, s.mocks = nil, nil
	for i := 0; i < 2; i++ {
		db, mock, err := sqlmock.New()
		s.Require().NoError(err)
		s.dbs = append(s.dbs, db)
		s.mocks = append(s.mocks, mock)
	}
}

func (s *mergeTestSuite) TearDownTest() {
	for i, mock := range s.mocks {
		s.NoError(mock.ExpectationsWereMet())
		_ = s.dbs[i].Close()
	}
}

func (s *mergeTestSuite) query(i int, cols []string, data ...[]driver.Value) rows.Rows {
	r := sqlmock.NewRows(cols)
	for _, d := range data {
		r.AddRow(d...)
	}
	s.mocks[i].ExpectQuery("SHOW").WillReturnRows(r)
	res, err := s.dbs[i].Query("SHOW TABLES")
	s.Require().NoError(err)
	return res
}

func (s *mergeTestSuite) shardingRule() *sharding.Rule {
	r, err := sharding.NewRule("sharding", sharding.RuleConfiguration{
		Tables: map[string]sharding.TableRuleConfiguration{
			"t_order": {
				ActualDataNodes: "ds_${0..1}.t_order_${0..1}",
				TableStrategy: &sharding.StrategyConfiguration{Standard: &sharding.StandardStrategyConfiguration{
					ShardingColumn: "order_id", ShardingAlgorithmName: "mod",
				}},
			},
		},
		ShardingAlgorithms: map[string]base.Configuration{
			"mod": {Type: "MOD", Props: map[string]any{"sharding-count": 2}},
		},
	}, []string{"ds_0", "ds_1"})
	s.Require().NoError(err)
	return r
}

func (s *mergeTestSuite) TestShowTables() {
	t := s.T()
	cols := []string{"Tables_in_db"}
	results := []rows.Rows{
		s.query(0, cols, []driver.Value{"t_order_0"}, []driver.Value{"t_config"}),
		s.query(1, cols, []driver.Value{"t_order_1"}, []driver.Value{"t_config"}),
	}
	b := route.NewBuilder()
	b.AddUnit(route.NewUnit(route.Identity("ds_0")), route.NewUnit(route.Identity("ds_1")))
	mc := &rule.MergeContext{
		Statement: &statement.Statement{SQL: "SHOW TABLES", Kind: statement.KindDAL, DAL: statement.DALShowTables},
		Route:     b.Build(),
	}
	res, err := NewEngine().Merge(context.Background(), mc, results, []rule.Rule{s.shardingRule()})
	require.NoError(t, err)
	data, err := rows.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"t_order"}, {"t_config"}}, data)
}

func TestResult(t *testing.T) {
	errStub := errors.New("stub")
	testcases := []struct {
		name             string
		res              Result
		wantAffected     int64
		wantLastInsertId int64
		wantErr          error
	}{
		{
			name: "影响行数求和_主键取最后一个",
			res: NewResult([]sql.Result{
				sqlmock.NewResult(1, 2),
				sqlmock.NewResult(5, 3),
			}, nil),
			wantAffected:     5,
			wantLastInsertId: 5,
		},
		{
			name: "跳过空的结果",
			res: NewResult([]sql.Result{
				sqlmock.NewResult(7, 1),
				nil,
			}, nil),
			wantAffected:     1,
			wantLastInsertId: 7,
		},
		{
			name:    "执行出错",
			res:     NewResult([]sql.Result{sqlmock.NewResult(1, 1)}, errStub),
			wantErr: errStub,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			affected, err := tc.res.RowsAffected()
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.wantAffected, affected)
			id, err := tc.res.LastInsertId()
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.wantLastInsertId, id)
		})
	}
	t.Run("某个单元读取影响行数失败", func(t *testing.T) {
		res := NewResult([]sql.Result{sqlmock.NewResult(1, 1), sqlmock.NewErrorResult(errStub)}, nil)
		_, err := res.RowsAffected()
		assert.ErrorIs(t, err, errStub)
	})
}
