// Copyright 2021 ecodeclub
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merger

import (
	"context"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/meoying/dbkernel/internal/merger/internal/errs"
	"github.com/meoying/dbkernel/internal/rows"
)

// Merger 将 rows.Rows 列表里的元素合并，返回一个类似 sql.Rows 的迭代器。
// 列表中每个 rows.Rows 仅支持单个结果集，并且列集必须完全相同
type Merger interface {
	Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error)
}

type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64 | ~string
}

type Order bool

const (
	// OrderASC 升序排序
	OrderASC Order = true
	// OrderDESC 降序排序
	OrderDESC Order = false
)

// ColumnInfo 结果集中的一列。Index 是它在结果集中的下标
type ColumnInfo struct {
	Index         int
	Name          string
	AggregateFunc string
	Alias         string
	Order         Order
	Distinct      bool
}

func (c ColumnInfo) SelectName() string {
	if c.Alias != "" {
		return c.Alias
	}
	if c.AggregateFunc != "" {
		return fmt.Sprintf("%s(%s)", c.AggregateFunc, c.Name)
	}
	return c.Name
}

func (c ColumnInfo) Validate() bool {
	// 聚合函数写在 AggregateFunc 里面, Name 只能是列名
	return c.Index >= 0 && !strings.Contains(c.Name, "(")
}

// Compare 升序时，-1 表示 i < j，1 表示 i > j，0 表示两者相同。降序时反过来
func Compare[T Ordered](ii any, jj any, order Order) int {
	i, j := ii.(T), jj.(T)
	if i < j && order == OrderASC || i > j && order == OrderDESC {
		return -1
	} else if i > j && order == OrderASC || i < j && order == OrderDESC {
		return 1
	}
	return 0
}

func CompareBool(ii, jj any, order Order) int {
	i, j := ii.(bool), jj.(bool)
	if i == j {
		return 0
	}
	if i && order == OrderASC || !i && order == OrderDESC {
		return 1
	}
	return -1
}

// CompareValues 比较两个从驱动里面扫描出来的值。
// NULL 永远是最小值；整数、无符号整数和浮点数之间可以互相比较
func CompareValues(ii, jj any, order Order) int {
	i, j := normalize(ii), normalize(jj)
	if i == nil && j == nil {
		return 0
	} else if i == nil && order == OrderASC || j == nil && order == OrderDESC {
		return -1
	} else if i == nil || j == nil {
		return 1
	}
	if reflect.TypeOf(i) == reflect.TypeOf(j) {
		if cmp, ok := CompareFuncMapping[reflect.TypeOf(i).Kind()]; ok {
			return cmp(i, j, order)
		}
	}
	fi, iok := toFloat(i)
	fj, jok := toFloat(j)
	if iok && jok {
		return Compare[float64](fi, fj, order)
	}
	return Compare[string](fmt.Sprint(i), fmt.Sprint(j), order)
}

// normalize 把 driver.Valuer、[]byte、time.Time 转换成可以直接比较的值
func normalize(v any) any {
	if vv, ok := v.(driver.Valuer); ok {
		val, err := vv.Value()
		if err != nil {
			return nil
		}
		v = val
	}
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.UnixNano()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}

var CompareFuncMapping = map[reflect.Kind]func(any, any, Order) int{
	reflect.Int64:   Compare[int64],
	reflect.Uint64:  Compare[uint64],
	reflect.Float64: Compare[float64],
	reflect.String:  Compare[string],
	reflect.Bool:    CompareBool,
}

// SortColumns 排序列，按照 ORDER BY 中出现的顺序
type SortColumns struct {
	columns []ColumnInfo
	index   map[int]int
}

func NewSortColumns(sortCols ...ColumnInfo) (SortColumns, error) {
	if len(sortCols) == 0 {
		return SortColumns{}, errs.ErrEmptySortColumns
	}
	s := SortColumns{
		columns: make([]ColumnInfo, 0, len(sortCols)),
		index:   make(map[int]int, len(sortCols)),
	}
	for _, c := range sortCols {
		if !c.Validate() {
			return SortColumns{}, errs.NewInvalidSortColumn(c.SelectName(), c.Index)
		}
		if _, ok := s.index[c.Index]; ok {
			continue
		}
		s.index[c.Index] = len(s.columns)
		s.columns = append(s.columns, c)
	}
	return s, nil
}

// Has 结果集中下标为 index 的列是不是排序列
func (s SortColumns) Has(index int) bool {
	_, ok := s.index[index]
	return ok
}

func (s SortColumns) Find(index int) int {
	return s.index[index]
}

func (s SortColumns) Get(i int) ColumnInfo {
	return s.columns[i]
}

func (s SortColumns) Len() int {
	return len(s.columns)
}

func (s SortColumns) IsZeroValue() bool {
	return len(s.columns) == 0
}

func (s SortColumns) Cols() []ColumnInfo {
	return s.columns
}

// CompareRows 按照排序列比较两行完整的数据
func (s SortColumns) CompareRows(a, b []any) int {
	for _, c := range s.columns {
		if res := CompareValues(a[c.Index], b[c.Index], c.Order); res != 0 {
			return res
		}
	}
	return 0
}

// Validate 检查排序列都在结果集的范围内
func (s SortColumns) Validate(columnCount int) error {
	for _, c := range s.columns {
		if c.Index >= columnCount {
			return errs.NewInvalidSortColumn(c.SelectName(), c.Index)
		}
	}
	return nil
}

// CheckColumns 检查所有的结果集列名一致，返回列名
func CheckColumns(results []rows.Rows) ([]string, error) {
	if len(results) == 0 {
		return nil, errs.ErrMergerEmptyRows
	}
	var cols []string
	for _, r := range results {
		if r == nil {
			return nil, errs.ErrMergerRowsIsNull
		}
		cs, err := r.Columns()
		if err != nil {
			return nil, err
		}
		if cols == nil {
			cols = cs
			continue
		}
		if len(cs) != len(cols) {
			return nil, errs.NewMergerRowsDiff(cols, cs)
		}
		for i := range cs {
			if !strings.EqualFold(cs[i], cols[i]) {
				return nil, errs.NewMergerRowsDiff(cols, cs)
			}
		}
	}
	return cols, nil
}
