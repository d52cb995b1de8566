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

package factory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ecodeclub/ekit/slice"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/merger/internal/aggregatemerger"
	"github.com/meoying/dbkernel/internal/merger/internal/aggregatemerger/aggregator"
	"github.com/meoying/dbkernel/internal/merger/internal/batchmerger"
	"github.com/meoying/dbkernel/internal/merger/internal/distinctmerger"
	"github.com/meoying/dbkernel/internal/merger/internal/groupbymerger"
	"github.com/meoying/dbkernel/internal/merger/internal/pagedmerger"
	"github.com/meoying/dbkernel/internal/merger/internal/sortmerger"
	"github.com/meoying/dbkernel/internal/rows"
)

var (
	ErrInvalidColumnInfo          = errors.New("merger: ColumnInfo非法")
	ErrEmptyColumnList            = errors.New("merger: 列列表为空")
	ErrColumnNotFoundInSelectList = errors.New("merger: Select列表中未找到列")
	ErrAVGColumnsNotFound         = errors.New("merger: AVG缺少SUM或者COUNT列")
)

type (
	// QuerySpec 从解析后的语句里面可以直接得到的查询特征，各个 merger 所需参数的并集
	QuerySpec struct {
		// Select 改写之后真正查询的列，包含为了归并追加的列
		Select  []merger.ColumnInfo
		GroupBy []merger.ColumnInfo
		OrderBy []merger.ColumnInfo
		// AVGs 每一个 AVG 列对应的 SUM 和 COUNT 列
		AVGs     []AVGColumns
		Distinct bool
		// Offset 和 Limit 是原始语句中的值，Limit 小于 0 表示没有 LIMIT
		Offset int
		Limit  int
		// VisibleColumns 原始语句的列数，大于 0 的时候追加的列会在归并之后去掉
		VisibleColumns int
	}

	AVGColumns struct {
		AVG   merger.ColumnInfo
		Sum   merger.ColumnInfo
		Count merger.ColumnInfo
	}
)

func (q QuerySpec) hasAggregate() bool {
	_, ok := slice.Find(q.Select, func(src merger.ColumnInfo) bool {
		return src.AggregateFunc != ""
	})
	return ok
}

func (q QuerySpec) hasLimit() bool {
	return q.Limit >= 0 || q.Offset > 0
}

func (q QuerySpec) Validate() error {
	validateFuncs := []func() error{
		q.validateSelect,
		q.validateGroupBy,
		q.validateOrderBy,
	}
	for _, f := range validateFuncs {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

func (q QuerySpec) validateSelect() error {
	if len(q.Select) == 0 {
		return fmt.Errorf("%w: select", ErrEmptyColumnList)
	}
	for i, c := range q.Select {
		if !c.Validate() || c.Index != i {
			return fmt.Errorf("%w: select %v", ErrInvalidColumnInfo, c)
		}
	}
	return nil
}

func (q QuerySpec) validateGroupBy() error {
	for _, c := range q.GroupBy {
		if !c.Validate() || c.Index >= len(q.Select) {
			return fmt.Errorf("%w: groupBy %v", ErrColumnNotFoundInSelectList, c)
		}
	}
	return nil
}

func (q QuerySpec) validateOrderBy() error {
	for _, c := range q.OrderBy {
		if !c.Validate() || c.Index >= len(q.Select) {
			return fmt.Errorf("%w: orderBy %v", ErrColumnNotFoundInSelectList, c)
		}
	}
	return nil
}

// New 根据查询特征组合出 merger：
// 分组、聚合、去重、排序最多选一个作为第一级，之后是分页，最后去掉追加的列
func New(spec QuerySpec) (merger.Merger, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	var first merger.Merger
	var err error
	switch {
	case len(spec.GroupBy) > 0:
		first, err = newGroupByMerger(spec)
	case spec.hasAggregate():
		first, err = newAggregateMerger(spec)
	case spec.Distinct:
		first, err = newDistinctMerger(spec)
	case len(spec.OrderBy) > 0:
		first, err = sortmerger.NewMerger(spec.OrderBy...)
	default:
		first = batchmerger.NewMerger()
	}
	if err != nil {
		return nil, err
	}
	if spec.hasLimit() {
		first, err = pagedmerger.NewMerger(first, spec.Offset, spec.Limit)
		if err != nil {
			return nil, err
		}
	}
	if spec.VisibleColumns > 0 && spec.VisibleColumns < len(spec.Select) {
		return &trimMerger{m: first, visible: spec.VisibleColumns}, nil
	}
	return first, nil
}

// NewBatchMerger 不需要任何处理，只是把结果集首尾相连
func NewBatchMerger() merger.Merger {
	return batchmerger.NewMerger()
}

func getAggregators(spec QuerySpec) ([]aggregator.Aggregator, error) {
	var aggregators []aggregator.Aggregator
	for _, c := range spec.Select {
		if c.AggregateFunc == "" {
			continue
		}
		if strings.EqualFold(c.AggregateFunc, "AVG") {
			avg, ok := slice.Find(spec.AVGs, func(src AVGColumns) bool {
				return src.AVG.Index == c.Index
			})
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrAVGColumnsNotFound, c.SelectName())
			}
			aggregators = append(aggregators, aggregator.NewAVG(avg.AVG, avg.Sum, avg.Count))
			continue
		}
		// 为 AVG 追加的列只用来计算，不需要再聚合
		if c.Index >= spec.visible() {
			continue
		}
		agg, err := aggregator.New(c)
		if err != nil {
			return nil, err
		}
		aggregators = append(aggregators, agg)
	}
	return aggregators, nil
}

func (q QuerySpec) visible() int {
	if q.VisibleColumns > 0 {
		return q.VisibleColumns
	}
	return len(q.Select)
}

func newAggregateMerger(spec QuerySpec) (merger.Merger, error) {
	aggregators, err := getAggregators(spec)
	if err != nil {
		return nil, err
	}
	return aggregatemerger.NewMerger(aggregators...), nil
}

func newGroupByMerger(spec QuerySpec) (merger.Merger, error) {
	aggregators, err := getAggregators(spec)
	if err != nil {
		return nil, err
	}
	return groupbymerger.NewAggregatorMerger(aggregators, spec.GroupBy, spec.OrderBy)
}

func newDistinctMerger(spec QuerySpec) (merger.Merger, error) {
	var sortColumns merger.SortColumns
	if len(spec.OrderBy) != 0 {
		s, err := merger.NewSortColumns(spec.OrderBy...)
		if err != nil {
			return nil, err
		}
		sortColumns = s
	}
	return distinctmerger.NewMerger(spec.visible(), sortColumns), nil
}

// trimMerger 去掉为了归并追加在末尾的列
type trimMerger struct {
	m       merger.Merger
	visible int
}

func (t *trimMerger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	r, err := t.m.Merge(ctx, results)
	if err != nil {
		return nil, err
	}
	return &trimRows{Rows: r, visible: t.visible}, nil
}

type trimRows struct {
	rows.Rows
	visible int
}

func (t *trimRows) Columns() ([]string, error) {
	cols, err := t.Rows.Columns()
	if err != nil || len(cols) < t.visible {
		return cols, err
	}
	return cols[:t.visible], nil
}

func (t *trimRows) ColumnTypes() ([]*sql.ColumnType, error) {
	types, err := t.Rows.ColumnTypes()
	if err != nil || len(types) < t.visible {
		return types, err
	}
	return types[:t.visible], nil
}

func (t *trimRows) Scan(dest ...any) error {
	cols, err := t.Rows.Columns()
	if err != nil {
		return err
	}
	if len(dest) >= len(cols) {
		return t.Rows.Scan(dest...)
	}
	all := make([]any, len(cols))
	copy(all, dest)
	for i := len(dest); i < len(cols); i++ {
		all[i] = new(any)
	}
	return t.Rows.Scan(all...)
}
