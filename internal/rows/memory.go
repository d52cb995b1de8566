package rows

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrClosed         = errors.New("rows: 结果集已经关闭")
	ErrScanBeforeNext = errors.New("rows: Scan 之前需要调用 Next")
)

var _ Rows = &MemoryRows{}

// MemoryRows 已经全部读到内存中的结果集。
// DAL 语句的结果很小，归并的时候直接读完再处理
type MemoryRows struct {
	mu          sync.RWMutex
	columns     []string
	columnTypes []*sql.ColumnType
	data        [][]any
	cur         int
	closed      bool
}

func NewMemoryRows(columns []string, columnTypes []*sql.ColumnType, data [][]any) *MemoryRows {
	return &MemoryRows{
		columns:     columns,
		columnTypes: columnTypes,
		data:        data,
		cur:         -1,
	}
}

func (m *MemoryRows) Next() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if m.cur >= len(m.data)-1 {
		m.closed = true
		return false
	}
	m.cur++
	return true
}

func (m *MemoryRows) Scan(dest ...any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if m.cur < 0 {
		return ErrScanBeforeNext
	}
	row := m.data[m.cur]
	if len(dest) != len(row) {
		return fmt.Errorf("rows: 期望 %d 个目标, 实际 %d 个", len(row), len(dest))
	}
	for i := range dest {
		if err := ConvertAssign(dest[i], row[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryRows) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryRows) Columns() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.columns, nil
}

func (m *MemoryRows) ColumnTypes() ([]*sql.ColumnType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.columnTypes, nil
}

func (m *MemoryRows) Err() error {
	return nil
}

func (m *MemoryRows) NextResultSet() bool {
	return false
}

// ReadAll 读完一个结果集并且关闭它，值按照 ScanValues 的规则扫描
func ReadAll(r Rows) ([][]any, error) {
	var res [][]any
	for r.Next() {
		vals, err := ScanValues(r)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		res = append(res, vals)
	}
	if err := r.Err(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return res, r.Close()
}
