package kernel

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/encrypt"
	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/executor"
	"github.com/meoying/dbkernel/internal/metrics"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/sharding"
	"github.com/meoying/dbkernel/internal/statement"
)

// testRules t_order 在 ds_0 上按照 order_id 分成两张表，phone 列加密
func testRules(t *testing.T) []rule.Rule {
	sr, err := sharding.NewRule("sharding", sharding.RuleConfiguration{
		Tables: map[string]sharding.TableRuleConfiguration{
			"t_order": {
				ActualDataNodes: "ds_0.t_order_${0..1}",
				TableStrategy: &sharding.StrategyConfiguration{Standard: &sharding.StandardStrategyConfiguration{
					ShardingColumn: "order_id", ShardingAlgorithmName: "mod",
				}},
			},
		},
		ShardingAlgorithms: map[string]base.Configuration{
			"mod": {Type: "MOD", Props: map[string]any{"sharding-count": 2}},
		},
		Auditors: map[string]base.Configuration{
			"dml": {Type: sharding.TypeDMLShardingConditions},
		},
		DefaultAuditStrategy: &sharding.AuditStrategyConfiguration{AuditorNames: []string{"dml"}},
	}, []string{"ds_0"})
	require.NoError(t, err)
	er, err := encrypt.NewRule("encrypt", encrypt.RuleConfiguration{
		Tables: map[string]encrypt.TableConfiguration{
			"t_order": {
				Columns: map[string]encrypt.ColumnConfiguration{
					"phone": {Cipher: encrypt.ColumnItemConfiguration{Name: "phone_cipher", EncryptorName: "aes"}},
				},
			},
		},
		Encryptors: map[string]base.Configuration{
			"aes": {Type: encrypt.TypeAES, Props: map[string]any{"aes-key-value": "123456abc"}},
		},
	})
	require.NoError(t, err)
	return []rule.Rule{er, sr}
}

func aesOf(t *testing.T, plain any) string {
	alg, err := encrypt.NewAES(base.MustNewProps(map[string]any{"aes-key-value": "123456abc"}))
	require.NoError(t, err)
	c, err := alg.Encrypt(plain)
	require.NoError(t, err)
	return c.(string)
}

func at(sql, sub string, nth int) statement.Span {
	offset := 0
	for i := 0; ; i++ {
		idx := strings.Index(sql[offset:], sub)
		if idx < 0 {
			panic("找不到 " + sub)
		}
		if i == nth {
			return statement.Span{Start: offset + idx, End: offset + idx + len(sub)}
		}
		offset += idx + len(sub)
	}
}

func orderTable(sql string) []statement.Table {
	return []statement.Table{{Name: "t_order", Spans: []statement.Span{at(sql, "t_order", 0)}}}
}

func orderIDEquals(sql string, param int) []statement.Condition {
	return []statement.Condition{{Predicates: []statement.Predicate{{
		Table: "t_order", Column: "order_id", ColumnSpan: at(sql, "order_id", 0), Op: statement.OpEQ,
		Values: []statement.Value{statement.ParamValue(param, at(sql, "?", param))},
	}}}}
}

// selectPhone SELECT phone FROM t_order WHERE order_id = ?
func selectPhone() *statement.Statement {
	sql := "SELECT phone FROM t_order WHERE order_id = ?"
	return &statement.Statement{
		SQL: sql, Kind: statement.KindSelect,
		Tables:      orderTable(sql),
		Projections: []statement.Projection{{Column: "phone", Span: at(sql, "phone", 0), ColumnSpan: at(sql, "phone", 0)}},
		Conditions:  orderIDEquals(sql, 0),
	}
}

// updatePhone UPDATE t_order SET phone = ? WHERE order_id = ?
func updatePhone() *statement.Statement {
	sql := "UPDATE t_order SET phone = ? WHERE order_id = ?"
	return &statement.Statement{
		SQL: sql, Kind: statement.KindUpdate,
		Tables: orderTable(sql),
		Assignments: []statement.Assignment{{
			Table: "t_order", Column: "phone", ColumnSpan: at(sql, "phone", 0),
			Value: statement.ParamValue(0, at(sql, "?", 0)),
		}},
		Conditions: orderIDEquals(sql, 1),
	}
}

func TestKernel(t *testing.T) {
	suite.Run(t, &kernelTestSuite{})
}

type kernelTestSuite struct {
	suite.Suite
	db      *sql.DB
	mock    sqlmock.Sqlmock
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	kernel  *Kernel
}

func (s *kernelTestSuite) SetupTest() {
	t := s.T()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	s.db, s.mock = db, mock
	s.reg = prometheus.NewRegistry()
	s.metrics, err = metrics.NewMetrics(s.reg)
	require.NoError(t, err)
	exec := executor.NewEngine(map[string]executor.DataSource{"ds_0": executor.OpenDB(db)})
	holder := rule.NewHolder(rule.NewSnapshot(testRules(t), []string{"ds_0"}, "", rule.Props{}))
	s.kernel = New(holder, WithExecutor(exec), WithMetrics(s.metrics))
}

func (s *kernelTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	_ = s.db.Close()
}

func (s *kernelTestSuite) TestQuery() {
	t := s.T()
	s.mock.ExpectQuery("SELECT phone_cipher AS phone FROM t_order_1 WHERE order_id = ?").WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"phone"}).AddRow(aesOf(t, "13800000000")))

	res, err := s.kernel.Query(context.Background(), Request{Statement: selectPhone(), Params: []any{1}})
	require.NoError(t, err)
	data, err := rows.ReadAll(res)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"13800000000"}}, data)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.Requests.WithLabelValues("SELECT", metrics.ResultOK)))
}

func (s *kernelTestSuite) TestExec() {
	t := s.T()
	s.mock.ExpectExec("UPDATE t_order_0 SET phone_cipher = ? WHERE order_id = ?").
		WithArgs(aesOf(t, "13900000000"), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := s.kernel.Exec(context.Background(), Request{Statement: updatePhone(), Params: []any{"13900000000", 0}})
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func (s *kernelTestSuite) TestExec_Failed() {
	t := s.T()
	errExec := errors.New("exec")
	s.mock.ExpectExec("UPDATE t_order_0 SET phone_cipher = ? WHERE order_id = ?").WillReturnError(errExec)

	_, err := s.kernel.Exec(context.Background(), Request{Statement: updatePhone(), Params: []any{"13900000000", 0}})
	assert.ErrorIs(t, err, errExec)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.StageErrors.WithLabelValues(metrics.StageExecute)))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.Requests.WithLabelValues("UPDATE", metrics.ResultError)))
}

func (s *kernelTestSuite) TestPrepare() {
	deleteAll := func() *statement.Statement {
		sql := "DELETE FROM t_order"
		return &statement.Statement{SQL: sql, Kind: statement.KindDelete, Tables: orderTable(sql)}
	}
	testcases := []struct {
		name      string
		req       Request
		wantSQL   []string
		wantStage string
		wantErr   error
	}{
		{
			name:    "查询路由到一张表",
			req:     Request{Statement: selectPhone(), Params: []any{3}},
			wantSQL: []string{"SELECT phone_cipher AS phone FROM t_order_1 WHERE order_id = ?"},
		},
		{
			name:      "没有分片条件的DELETE被审计拒绝",
			req:       Request{Statement: deleteAll()},
			wantStage: metrics.StageAudit,
			wantErr:   errs.ErrUnsupportedOperation,
		},
	}
	for _, tc := range testcases {
		s.Run(tc.name, func() {
			t := s.T()
			plan, err := s.kernel.Prepare(tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
			if err != nil {
				assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.StageErrors.WithLabelValues(tc.wantStage)))
				return
			}
			sqls := make([]string, 0, len(plan.Units))
			for _, u := range plan.Units {
				sqls = append(sqls, u.SQL)
			}
			assert.Equal(t, tc.wantSQL, sqls)
			assert.Equal(t, uint64(1), plan.Snapshot.Generation)
		})
	}
}

func TestKernel_NoExecutor(t *testing.T) {
	k := New(rule.NewHolder(rule.NewSnapshot(testRules(t), []string{"ds_0"}, "", rule.Props{})))
	_, err := k.Query(context.Background(), Request{Statement: selectPhone(), Params: []any{1}})
	assert.ErrorIs(t, err, ErrNoExecutor)
	_, err = k.Exec(context.Background(), Request{Statement: updatePhone(), Params: []any{"a", 1}})
	assert.ErrorIs(t, err, ErrNoExecutor)
	plan, err := k.Prepare(Request{Statement: selectPhone(), Params: []any{1}})
	require.NoError(t, err)
	assert.Len(t, plan.Units, 1)
}
