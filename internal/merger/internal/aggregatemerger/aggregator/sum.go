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
)

// Sum 各个分片的 SUM 再求和
type Sum struct {
	col merger.ColumnInfo
}

func NewSum(col merger.ColumnInfo) *Sum {
	return &Sum{col: col}
}

func (s *Sum) Aggregate(rows [][]any) (any, error) {
	res, ok, err := sum(rows, s.col.Index)
	if err != nil || !ok {
		return nil, err
	}
	return res.value(), nil
}

func (s *Sum) ColumnInfo() merger.ColumnInfo {
	return s.col
}

func (*Sum) Name() string {
	return "SUM"
}

// Count 各个分片的 COUNT 求和
type Count struct {
	col merger.ColumnInfo
}

func NewCount(col merger.ColumnInfo) *Count {
	return &Count{col: col}
}

func (c *Count) Aggregate(rows [][]any) (any, error) {
	res, _, err := sum(rows, c.col.Index)
	if err != nil {
		return nil, err
	}
	return int64(res.float()), nil
}

func (c *Count) ColumnInfo() merger.ColumnInfo {
	return c.col
}

func (*Count) Name() string {
	return "COUNT"
}
