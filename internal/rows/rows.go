package rows

import (
	"database/sql"
	"reflect"
)

var _ Rows = &sql.Rows{}

// Rows 结果集游标，和 *sql.Rows 的方法保持一致。
// 物理数据源返回的 *sql.Rows 和归并、装饰之后的结果集都实现了这个接口
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
	Err() error
	NextResultSet() bool
}

// ScanValues 把当前行扫描出来。
// 有列类型的时候按照驱动给出的 ScanType 扫描，否则直接用 any 接收
func ScanValues(r Rows) ([]any, error) {
	cols, err := r.Columns()
	if err != nil {
		return nil, err
	}
	types, err := r.ColumnTypes()
	if err != nil || len(types) != len(cols) {
		types = nil
	}
	dest := make([]any, len(cols))
	for i := range cols {
		if types != nil && types[i].ScanType() != nil {
			typ := types[i].ScanType()
			for typ.Kind() == reflect.Ptr {
				typ = typ.Elem()
			}
			dest[i] = reflect.New(typ).Interface()
			continue
		}
		dest[i] = new(any)
	}
	if err = r.Scan(dest...); err != nil {
		return nil, err
	}
	for i := range dest {
		dest[i] = reflect.ValueOf(dest[i]).Elem().Interface()
	}
	return dest, nil
}

// ScanRaw 用 any 接收当前行，拿到的是驱动返回的原始值
func ScanRaw(r Rows, n int) ([]any, error) {
	vals := make([]any, n)
	dest := make([]any, n)
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	return vals, nil
}
