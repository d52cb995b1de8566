package log

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestLogDriver(t *testing.T) {
	suite.Run(t, &logDriverTestSuite{})
}

type logDriverTestSuite struct {
	suite.Suite
	mockDB *sql.DB
	mock   sqlmock.Sqlmock
	db     *sql.DB
	buf    *bytes.Buffer
}

func (s *logDriverTestSuite) SetupTest() {
	t := s.T()
	mockDB, mock, err := sqlmock.NewWithDSN(t.Name(), sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	s.mockDB, s.mock = mockDB, mock
	s.buf = &bytes.Buffer{}
	l := slog.New(slog.NewTextHandler(s.buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, err := NewConnector(mockDB.Driver(), t.Name(), WithLogger(l), WithDataSource("ds_0"))
	require.NoError(t, err)
	s.db = sql.OpenDB(c)
}

func (s *logDriverTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	_ = s.db.Close()
	_ = s.mockDB.Close()
}

func (s *logDriverTestSuite) TestQuery() {
	t := s.T()
	s.mock.ExpectQuery("SELECT order_id FROM t_order_0 WHERE order_id = ?").WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(2))

	var id int
	err := s.db.QueryRowContext(context.Background(),
		"SELECT order_id FROM t_order_0 WHERE order_id = ?", 2).Scan(&id)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	out := s.buf.String()
	assert.Contains(t, out, "level=DEBUG msg=查询")
	assert.Contains(t, out, "dataSource=ds_0")
	assert.Contains(t, out, `sql="SELECT order_id FROM t_order_0 WHERE order_id = ?"`)
	assert.Contains(t, out, "args=[2]")
}

func (s *logDriverTestSuite) TestExec() {
	testcases := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantLog string
		wantErr error
	}{
		{
			name: "执行成功",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM t_order_0").WillReturnResult(sqlmock.NewResult(0, 3))
			},
			wantLog: "level=DEBUG msg=执行",
		},
		{
			name: "执行失败",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM t_order_0").WillReturnError(errors.New("mock exec"))
			},
			wantLog: "level=ERROR msg=执行失败",
			wantErr: errors.New("mock exec"),
		},
	}
	for _, tc := range testcases {
		s.Run(tc.name, func() {
			t := s.T()
			s.buf.Reset()
			tc.mock(s.mock)
			_, err := s.db.ExecContext(context.Background(), "DELETE FROM t_order_0")
			assert.Equal(t, tc.wantErr, err)
			assert.Contains(t, s.buf.String(), tc.wantLog)
		})
	}
}

func (s *logDriverTestSuite) TestPrepare() {
	t := s.T()
	s.mock.ExpectPrepare("UPDATE t_order_1 SET phone_cipher = ?").
		ExpectExec().WithArgs("abc").WillReturnResult(sqlmock.NewResult(0, 1))

	stmt, err := s.db.PrepareContext(context.Background(), "UPDATE t_order_1 SET phone_cipher = ?")
	require.NoError(t, err)
	res, err := stmt.Exec("abc")
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Contains(t, s.buf.String(), "msg=预编译")
}

func TestNewConnector(t *testing.T) {
	testcases := []struct {
		name    string
		dsn     string
		wantErr bool
	}{
		{name: "DriverContext", dsn: "root:root@tcp(localhost:13306)/order_db"},
		{name: "非法的DSN", dsn: "invalid", wantErr: true},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			d := &mysql.MySQLDriver{}
			c, err := NewConnector(d, tc.dsn)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, d, c.Driver())
		})
	}
}
