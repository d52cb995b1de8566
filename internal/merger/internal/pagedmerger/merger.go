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

package pagedmerger

import (
	"context"
	"database/sql"
	"sync"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/merger/internal/errs"
	"github.com/meoying/dbkernel/internal/rows"
)

// Merger 在上一个 Merger 的结果上跳过 offset 行，最多返回 limit 行。
// limit 小于 0 表示不限制
type Merger struct {
	m      merger.Merger
	offset int
	limit  int
}

func NewMerger(m merger.Merger, offset int, limit int) (*Merger, error) {
	if offset < 0 {
		return nil, errs.ErrInvalidOffsetOrLimit
	}
	return &Merger{
		m:      m,
		offset: offset,
		limit:  limit,
	}, nil
}

func (m *Merger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	rs, err := m.m.Merge(ctx, results)
	if err != nil {
		return nil, err
	}
	if err = m.skip(rs); err != nil {
		_ = rs.Close()
		return nil, err
	}
	return &Rows{rows: rs, limit: m.limit}, nil
}

func (m *Merger) skip(rs rows.Rows) error {
	for i := 0; i < m.offset; i++ {
		if !rs.Next() {
			return rs.Err()
		}
	}
	return nil
}

type Rows struct {
	rows    rows.Rows
	limit   int
	cnt     int
	mu      sync.RWMutex
	lastErr error
	closed  bool
}

func (r *Rows) Next() bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if r.limit >= 0 && r.cnt >= r.limit || !r.rows.Next() {
		r.lastErr = r.rows.Err()
		r.mu.Unlock()
		_ = r.Close()
		return false
	}
	r.cnt++
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
	return r.rows.Scan(dest...)
}

func (r *Rows) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rows.Close()
}

func (r *Rows) Columns() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, errs.ErrMergerRowsClosed
	}
	return r.rows.Columns()
}

func (r *Rows) ColumnTypes() ([]*sql.ColumnType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, errs.ErrMergerRowsClosed
	}
	return r.rows.ColumnTypes()
}

func (r *Rows) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (*Rows) NextResultSet() bool {
	return false
}
