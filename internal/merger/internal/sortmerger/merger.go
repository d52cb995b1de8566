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

package sortmerger

import (
	"container/heap"
	"context"
	"database/sql"
	"sync"

	"go.uber.org/multierr"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/merger/internal/errs"
	heap2 "github.com/meoying/dbkernel/internal/merger/internal/sortmerger/heap"
	"github.com/meoying/dbkernel/internal/rows"
)

// Merger 流式的排序归并，要求每一个结果集自身已经按照排序列有序。
// 每次只从被取走的结果集里面再读一行
type Merger struct {
	sortColumns merger.SortColumns
}

func NewMerger(sortCols ...merger.ColumnInfo) (*Merger, error) {
	scs, err := merger.NewSortColumns(sortCols...)
	if err != nil {
		return nil, err
	}
	return &Merger{sortColumns: scs}, nil
}

func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	cols, err := merger.CheckColumns(results)
	if err != nil {
		return nil, err
	}
	if err = m.sortColumns.Validate(len(cols)); err != nil {
		return nil, err
	}
	columnTypes, err := results[0].ColumnTypes()
	if err != nil {
		return nil, err
	}
	rs := &Rows{
		rowsList:    results,
		sortColumns: m.sortColumns,
		columns:     cols,
		columnTypes: columnTypes,
	}
	rs.hp = heap2.NewHeap(make([]*heap2.Node, 0, len(results)), m.sortColumns)
	for i := range results {
		if err = rs.scanOne(i); err != nil {
			_ = rs.Close()
			return nil, err
		}
	}
	return rs, nil
}

type Rows struct {
	rowsList    []rows.Rows
	columnTypes []*sql.ColumnType
	columns     []string
	sortColumns merger.SortColumns
	hp          *heap2.Heap
	cur         *heap2.Node
	mu          sync.RWMutex
	lastErr     error
	closed      bool
}

func (r *Rows) scanOne(index int) error {
	row := r.rowsList[index]
	if !row.Next() {
		return row.Err()
	}
	values, err := rows.ScanValues(row)
	if err != nil {
		return err
	}
	heap.Push(r.hp, heap2.NewNode(index, values, r.sortColumns))
	return nil
}

func (r *Rows) Next() bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if r.hp.Len() == 0 || r.lastErr != nil {
		r.mu.Unlock()
		_ = r.Close()
		return false
	}
	r.cur = heap.Pop(r.hp).(*heap2.Node)
	if err := r.scanOne(r.cur.RowsListIndex); err != nil {
		r.lastErr = err
		r.mu.Unlock()
		_ = r.Close()
		return false
	}
	r.mu.Unlock()
	return true
}

func (r *Rows) Scan(dest ...any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastErr != nil {
		return r.lastErr
	}
	if r.closed {
		return errs.ErrMergerRowsClosed
	}
	if r.cur == nil {
		return errs.ErrMergerScanNotNext
	}
	if len(dest) != len(r.cur.ColumnValues) {
		return errs.ErrMergerInvalidDest
	}
	for i := range dest {
		if err := rows.ConvertAssign(dest[i], r.cur.ColumnValues[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rows) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	errList := make([]error, 0, len(r.rowsList))
	for _, row := range r.rowsList {
		errList = append(errList, row.Close())
	}
	return multierr.Combine(errList...)
}

func (r *Rows) Columns() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, errs.ErrMergerRowsClosed
	}
	return r.columns, nil
}

func (r *Rows) ColumnTypes() ([]*sql.ColumnType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, errs.ErrMergerRowsClosed
	}
	return r.columnTypes, nil
}

func (r *Rows) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (*Rows) NextResultSet() bool {
	return false
}
