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

package aggregatemerger

import (
	"context"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/merger/internal/aggregatemerger/aggregator"
	"github.com/meoying/dbkernel/internal/merger/internal/errs"
	"github.com/meoying/dbkernel/internal/rows"
)

// Merger 没有 GROUP BY 的聚合查询，每个结果集只有一行，合并之后也只有一行
type Merger struct {
	aggregators []aggregator.Aggregator
}

func NewMerger(aggregators ...aggregator.Aggregator) *Merger {
	return &Merger{aggregators: aggregators}
}

func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	collected, err := merger.Collect(ctx, results)
	if err != nil {
		return nil, err
	}
	row, err := Aggregate(m.aggregators, len(collected.Columns), collected.Data)
	if err != nil {
		return nil, err
	}
	return collected.ToRows([][]any{row}), nil
}

// Aggregate 把同一组的数据合并成一行，非聚合列取第一行的值
func Aggregate(aggregators []aggregator.Aggregator, columnCount int, data [][]any) ([]any, error) {
	row := make([]any, columnCount)
	if len(data) > 0 {
		copy(row, data[0])
	}
	for _, agg := range aggregators {
		idx := agg.ColumnInfo().Index
		if idx < 0 || idx >= columnCount {
			return nil, errs.NewInvalidAggregateColumn(agg.ColumnInfo().SelectName(), idx)
		}
		val, err := agg.Aggregate(data)
		if err != nil {
			return nil, err
		}
		row[idx] = val
	}
	return row, nil
}
