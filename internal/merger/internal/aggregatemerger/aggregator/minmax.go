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

package aggregator

import (
	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/merger/internal/errs"
)

type extremum struct {
	col   merger.ColumnInfo
	name  string
	order merger.Order
}

// Aggregate 跳过 NULL，全部为 NULL 的时候结果也是 NULL
func (e *extremum) Aggregate(rows [][]any) (any, error) {
	var res any
	for _, row := range rows {
		if e.col.Index >= len(row) {
			return nil, errs.NewInvalidAggregateColumn(e.col.SelectName(), e.col.Index)
		}
		v := row[e.col.Index]
		if merger.CompareValues(v, nil, merger.OrderASC) == 0 {
			continue
		}
		if res == nil || merger.CompareValues(v, res, e.order) < 0 {
			res = v
		}
	}
	return res, nil
}

func (e *extremum) ColumnInfo() merger.ColumnInfo {
	return e.col
}

func (e *extremum) Name() string {
	return e.name
}

type Max struct {
	extremum
}

func NewMax(col merger.ColumnInfo) *Max {
	return &Max{extremum{col: col, name: "MAX", order: merger.OrderDESC}}
}

type Min struct {
	extremum
}

func NewMin(col merger.ColumnInfo) *Min {
	return &Min{extremum{col: col, name: "MIN", order: merger.OrderASC}}
}
