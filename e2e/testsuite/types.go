package testsuite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ecodeclub/ekit/retry"
	"github.com/stretchr/testify/require"

	"github.com/meoying/dbkernel/internal/statement"
)

const (
	// MYSQLDSNTmpl 直接连接MYSQL数据库时所用的DSN
	MYSQLDSNTmpl = "root:root@tcp(localhost:13306)/%s"
)

// OrderTables t_order 的两张真实表
var OrderTables = []string{"t_order_0", "t_order_1"}

// ConfigTmpl 分片加加密，%s 依次是驱动和 DSN
const ConfigTmpl = `
dataSources:
  ds_0:
    driver: %s
    dsn: "%s"
rules:
  sharding:
    tables:
      t_order:
        actualDataNodes: "ds_0.t_order_${0..1}"
        tableStrategy:
          standard:
            shardingColumn: order_id
            shardingAlgorithmName: mod
    shardingAlgorithms:
      mod:
        type: MOD
        props:
          sharding-count: 2
  encrypt:
    tables:
      t_order:
        columns:
          phone:
            cipher:
              name: phone_cipher
              encryptorName: aes
    encryptors:
      aes:
        type: AES
        props:
          aes-key-value: "123456abc"
props:
  check-table-metadata-enabled: true
`

func CreateDatabases(t *testing.T, db *sql.DB, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name))
		require.NoError(t, err, fmt.Errorf("创建库=%s失败", name))
	}
}

func CreateTables(t *testing.T, db *sql.DB, tableNames ...string) {
	t.Helper()
	const tableTemplate = "CREATE TABLE IF NOT EXISTS %s " +
		"(" +
		"order_id BIGINT NOT NULL," +
		"phone_cipher VARCHAR(255) NOT NULL," +
		"PRIMARY KEY (order_id)" +
		")"
	for _, name := range tableNames {
		_, err := db.Exec(fmt.Sprintf(tableTemplate, name))
		require.NoError(t, err, fmt.Errorf("创建表=%s失败", name))
	}
}

func ClearTables(t *testing.T, db *sql.DB, tableNames ...string) {
	t.Helper()
	for _, name := range tableNames {
		_, err := db.Exec(fmt.Sprintf("DELETE FROM %s", name))
		require.NoError(t, err)
	}
}

// WaitForMySQLSetup 检查MySQL是否启动并返回一个可用的*sql.DB对象
func WaitForMySQLSetup(dsn string) *sql.DB {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}
	const maxInterval = 10 * time.Second
	const maxRetries = 10
	strategy, err := retry.NewExponentialBackoffRetryStrategy(time.Second, maxInterval, maxRetries)
	if err != nil {
		panic(err)
	}
	const timeout = 5 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err = sqlDB.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}
		next, ok := strategy.Next()
		if !ok {
			panic("WaitForMySQLSetup 重试失败......")
		}
		time.Sleep(next)
	}
	return sqlDB
}

// normalize Null 类型取出里面的值
func normalize(v any) any {
	if vr, ok := v.(driver.Valuer); ok {
		val, err := vr.Value()
		if err == nil {
			return val
		}
	}
	return v
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

func param(sql string, idx, nth int) statement.Value {
	return statement.ParamValue(idx, at(sql, "?", nth))
}

func orderTable(sql string) []statement.Table {
	return []statement.Table{{Name: "t_order", Spans: []statement.Span{at(sql, "t_order", 0)}}}
}

// insertOrders INSERT INTO t_order (order_id, phone) VALUES (?, ?), ...
func insertOrders(rows int) *statement.Statement {
	values := make([]string, rows)
	for i := range values {
		values[i] = "(?, ?)"
	}
	sql := "INSERT INTO t_order (order_id, phone) VALUES " + strings.Join(values, ", ")
	insert := &statement.Insert{
		Table:       "t_order",
		Columns:     []string{"order_id", "phone"},
		ColumnsSpan: statement.Span{Start: at(sql, "order_id", 0).Start, End: at(sql, "phone", 0).End},
		ValuesSpan:  statement.Span{Start: at(sql, "VALUES ", 0).End, End: len(sql)},
	}
	for i := 0; i < rows; i++ {
		insert.Rows = append(insert.Rows, statement.InsertRow{
			Values: []statement.Value{param(sql, 2*i, 2*i), param(sql, 2*i+1, 2*i+1)},
			Span:   statement.Span{Start: at(sql, "(", i+1).Start, End: at(sql, ")", i+1).End},
		})
	}
	return &statement.Statement{
		SQL: sql, Kind: statement.KindInsert,
		Tables: orderTable(sql),
		Insert: insert,
	}
}

// selectOrders SELECT order_id, phone FROM t_order ORDER BY order_id
func selectOrders() *statement.Statement {
	sql := "SELECT order_id, phone FROM t_order ORDER BY order_id"
	return &statement.Statement{
		SQL: sql, Kind: statement.KindSelect,
		Tables: orderTable(sql),
		Projections: []statement.Projection{
			{Column: "order_id", Span: at(sql, "order_id", 0), ColumnSpan: at(sql, "order_id", 0)},
			{Column: "phone", Span: at(sql, "phone", 0), ColumnSpan: at(sql, "phone", 0)},
		},
		OrderBy: []statement.OrderItem{{Column: "order_id", Index: 0}},
	}
}

func orderIDIn(sql string, params int) []statement.Condition {
	vals := make([]statement.Value, 0, params)
	op := statement.OpEQ
	if params > 1 {
		op = statement.OpIn
	}
	for i := 0; i < params; i++ {
		vals = append(vals, param(sql, i, i))
	}
	return []statement.Condition{{Predicates: []statement.Predicate{{
		Table: "t_order", Column: "order_id", ColumnSpan: at(sql, "order_id", 0), Op: op, Values: vals,
	}}}}
}

// updatePhone UPDATE t_order SET phone = ? WHERE order_id = ?
func updatePhone() *statement.Statement {
	sql := "UPDATE t_order SET phone = ? WHERE order_id = ?"
	conds := orderIDIn(sql, 1)
	conds[0].Predicates[0].Values = []statement.Value{param(sql, 1, 1)}
	return &statement.Statement{
		SQL: sql, Kind: statement.KindUpdate,
		Tables: orderTable(sql),
		Assignments: []statement.Assignment{{
			Table: "t_order", Column: "phone", ColumnSpan: at(sql, "phone", 0),
			Value: param(sql, 0, 0),
		}},
		Conditions: conds,
	}
}

// deleteOrders DELETE FROM t_order WHERE order_id IN (?, ?)
func deleteOrders() *statement.Statement {
	sql := "DELETE FROM t_order WHERE order_id IN (?, ?)"
	return &statement.Statement{
		SQL: sql, Kind: statement.KindDelete,
		Tables:     orderTable(sql),
		Conditions: orderIDIn(sql, 2),
	}
}
