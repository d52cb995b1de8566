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

package distinctmerger

import (
	"context"
	"sort"

	"github.com/ecodeclub/ekit/mapx"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/rows"
)

// Merger SELECT DISTINCT 的归并，对所有结果集的行去重。
// 有排序列的时候按照排序列输出，否则按照整行升序输出
type Merger struct {
	sortColumns merger.SortColumns
	// distinctColumns 参与去重的列数，后面的列是改写追加的
	distinctColumns int
}

func NewMerger(distinctColumns int, sortColumns merger.SortColumns) *Merger {
	return &Merger{
		sortColumns:     sortColumns,
		distinctColumns: distinctColumns,
	}
}

func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	collected, err := merger.Collect(ctx, results)
	if err != nil {
		return nil, err
	}
	n := m.distinctColumns
	if n <= 0 || n > len(collected.Columns) {
		n = len(collected.Columns)
	}
	t, err := mapx.NewTreeMap[treeMapKey, []any](func(src, dst treeMapKey) int {
		return src.compare(dst)
	})
	if err != nil {
		return nil, err
	}
	for _, row := range collected.Data {
		key := treeMapKey{values: row[:n]}
		if _, ok := t.Get(key); ok {
			continue
		}
		if err = t.Put(key, row); err != nil {
			return nil, err
		}
	}
	data := make([][]any, 0, len(collected.Data))
	for _, key := range t.Keys() {
		row, _ := t.Get(key)
		data = append(data, row)
	}
	if !m.sortColumns.IsZeroValue() {
		if err = m.sortColumns.Validate(len(collected.Columns)); err != nil {
			return nil, err
		}
		sort.SliceStable(data, func(i, j int) bool {
			return m.sortColumns.CompareRows(data[i], data[j]) < 0
		})
	}
	return collected.ToRows(data), nil
}

type treeMapKey struct {
	values []any
}

func (k treeMapKey) compare(b treeMapKey) int {
	for i := range k.values {
		if res := merger.CompareValues(k.values[i], b.values[i], merger.OrderASC); res != 0 {
			return res
		}
	}
	return 0
}
