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

package batchmerger

import (
	"context"
	"database/sql"
	"sync"

	"go.uber.org/multierr"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/merger/internal/errs"
	"github.com/meoying/dbkernel/internal/rows"
)

// Merger 按顺序把结果集首尾相连，不读入内存
type Merger struct{}

func NewMerger() *Merger {
	return &Merger{}
}

func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	cols, err := merger.CheckColumns(results)
	if err != nil {
		return nil, err
	}
	return &Rows{rowsList: results, columns: cols}, nil
}

type Rows struct {
	rowsList []rows.Rows
	cnt      int
	columns  []string
	mu       sync.RWMutex
	lastErr  error
	closed   bool
}

func (r *Rows) Next() bool {
	r.mu.Lock()
	if r.closed || r.lastErr != nil {
		r.mu.Unlock()
		return false
	}
	for r.cnt < len(r.rowsList) {
		cur := r.rowsList[r.cnt]
		if cur.Next() {
			r.mu.Unlock()
			return true
		}
		if err := cur.Err(); err != nil {
			r.lastErr = err
			break
		}
		r.cnt++
	}
	r.mu.Unlock()
	_ = r.Close()
	return false
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
	return r.rowsList[r.cnt].Scan(dest...)
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
	return r.rowsList[0].ColumnTypes()
}

func (r *Rows) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (*Rows) NextResultSet() bool {
	return false
}
