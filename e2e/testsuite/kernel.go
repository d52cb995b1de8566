package testsuite

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/meoying/dbkernel/config"
	"github.com/meoying/dbkernel/internal/executor"
	"github.com/meoying/dbkernel/internal/kernel"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
)

// NewKernel 按照 ConfigTmpl 创建内核并且加载元数据
func NewKernel(t *testing.T, driver, dsn string) (*kernel.Kernel, *executor.Engine) {
	t.Helper()
	cfg, err := config.ParseContent(fmt.Sprintf(ConfigTmpl, driver, dsn))
	require.NoError(t, err)
	snapshot, err := cfg.Snapshot()
	require.NoError(t, err)
	sources, err := cfg.OpenDataSources(nil)
	require.NoError(t, err)
	exec := executor.NewEngine(sources)
	k := kernel.New(rule.NewHolder(snapshot), kernel.WithExecutor(exec))
	require.NoError(t, k.LoadMetadata(context.Background(), kernel.QueryLoader{Executor: exec}))
	return k, exec
}

// KernelTestSuite 通过内核写入和读取 t_order，
// 同时直连物理库检查数据确实落在了对应的真实表上，并且是密文
type KernelTestSuite struct {
	suite.Suite
	raw    *sql.DB
	kernel *kernel.Kernel
}

func (s *KernelTestSuite) Init(raw *sql.DB, k *kernel.Kernel) {
	s.raw = raw
	s.kernel = k
}

func (s *KernelTestSuite) SetupTest() {
	ClearTables(s.T(), s.raw, OrderTables...)
}

func (s *KernelTestSuite) insert(ctx context.Context) {
	t := s.T()
	res, err := s.kernel.Exec(ctx, kernel.Request{
		Statement: insertOrders(4),
		Params:    []any{1, "13800000001", 2, "13800000002", 3, "13800000003", 4, "13800000004"},
	})
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(4), affected)
}

func (s *KernelTestSuite) orders(ctx context.Context) [][]any {
	t := s.T()
	res, err := s.kernel.Query(ctx, kernel.Request{Statement: selectOrders()})
	require.NoError(t, err)
	data, err := rows.ReadAll(res)
	require.NoError(t, err)
	for _, row := range data {
		row[0] = cast.ToInt64(normalize(row[0]))
		row[1] = cast.ToString(normalize(row[1]))
	}
	return data
}

func (s *KernelTestSuite) TestInsertAndSelect() {
	t := s.T()
	ctx := context.Background()
	s.insert(ctx)

	for _, table := range OrderTables {
		var cnt int
		require.NoError(t, s.raw.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&cnt))
		assert.Equal(t, 2, cnt, table)
	}
	var cipher string
	require.NoError(t, s.raw.QueryRow("SELECT phone_cipher FROM t_order_1 WHERE order_id = 1").Scan(&cipher))
	assert.NotEqual(t, "13800000001", cipher)

	assert.Equal(t, [][]any{
		{int64(1), "13800000001"},
		{int64(2), "13800000002"},
		{int64(3), "13800000003"},
		{int64(4), "13800000004"},
	}, s.orders(ctx))
}

func (s *KernelTestSuite) TestUpdate() {
	t := s.T()
	ctx := context.Background()
	s.insert(ctx)

	res, err := s.kernel.Exec(ctx, kernel.Request{Statement: updatePhone(), Params: []any{"13900000002", 2}})
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Equal(t, []any{int64(2), "13900000002"}, s.orders(ctx)[1])
}

func (s *KernelTestSuite) TestDelete() {
	t := s.T()
	ctx := context.Background()
	s.insert(ctx)

	// 1 和 2 在不同的真实表上，影响行数是两边的和
	res, err := s.kernel.Exec(ctx, kernel.Request{Statement: deleteOrders(), Params: []any{1, 2}})
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.Equal(t, [][]any{
		{int64(3), "13800000003"},
		{int64(4), "13800000004"},
	}, s.orders(ctx))
}
