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

package groupbymerger

import (
	"context"
	"sort"

	"github.com/ecodeclub/ekit/mapx"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/merger/internal/aggregatemerger"
	"github.com/meoying/dbkernel/internal/merger/internal/aggregatemerger/aggregator"
	"github.com/meoying/dbkernel/internal/merger/internal/errs"
	"github.com/meoying/dbkernel/internal/rows"
)

// AggregatorMerger 按照分组列把所有结果集的数据分组之后再聚合。
// 不支持 HAVING
type AggregatorMerger struct {
	aggregators   []aggregator.Aggregator
	groupColumns  []merger.ColumnInfo
	orderByColumn merger.SortColumns
}

// NewAggregatorMerger orderBy 为空时按照分组列升序输出
func NewAggregatorMerger(aggregators []aggregator.Aggregator,
	groupColumns []merger.ColumnInfo, orderBy []merger.ColumnInfo) (*AggregatorMerger, error) {
	if len(groupColumns) == 0 {
		return nil, errs.ErrInvalidGroupByColumn
	}
	m := &AggregatorMerger{
		aggregators:  aggregators,
		groupColumns: groupColumns,
	}
	if len(orderBy) > 0 {
		scs, err := merger.NewSortColumns(orderBy...)
		if err != nil {
			return nil, err
		}
		m.orderByColumn = scs
	}
	return m, nil
}

func (a *AggregatorMerger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	collected, err := merger.Collect(ctx, results)
	if err != nil {
		return nil, err
	}
	for _, c := range a.groupColumns {
		if c.Index < 0 || c.Index >= len(collected.Columns) {
			return nil, errs.ErrInvalidGroupByColumn
		}
	}
	groups, err := mapx.NewTreeMap[groupKey, [][]any](func(src, dst groupKey) int {
		return src.compare(dst)
	})
	if err != nil {
		return nil, err
	}
	for _, row := range collected.Data {
		key := a.keyOf(row)
		val, _ := groups.Get(key)
		if err = groups.Put(key, append(val, row)); err != nil {
			return nil, err
		}
	}
	keys := groups.Keys()
	data := make([][]any, 0, len(keys))
	for _, key := range keys {
		val, _ := groups.Get(key)
		row, err := aggregatemerger.Aggregate(a.aggregators, len(collected.Columns), val)
		if err != nil {
			return nil, err
		}
		data = append(data, row)
	}
	if !a.orderByColumn.IsZeroValue() {
		if err = a.orderByColumn.Validate(len(collected.Columns)); err != nil {
			return nil, err
		}
		sort.SliceStable(data, func(i, j int) bool {
			return a.orderByColumn.CompareRows(data[i], data[j]) < 0
		})
	}
	return collected.ToRows(data), nil
}

func (a *AggregatorMerger) keyOf(row []any) groupKey {
	vals := make([]any, 0, len(a.groupColumns))
	for _, c := range a.groupColumns {
		vals = append(vals, row[c.Index])
	}
	return groupKey{values: vals}
}

type groupKey struct {
	values []any
}

func (k groupKey) compare(o groupKey) int {
	for i := range k.values {
		if res := merger.CompareValues(k.values[i], o.values[i], merger.OrderASC); res != 0 {
			return res
		}
	}
	return 0
}
