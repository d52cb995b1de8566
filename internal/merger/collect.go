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
	"database/sql"

	"go.uber.org/multierr"

	"github.com/meoying/dbkernel/internal/rows"
)

// Collected 已经全部读到内存里面的结果
type Collected struct {
	Columns     []string
	ColumnTypes []*sql.ColumnType
	Data        [][]any
}

// ToRows 把数据重新包装成结果集
func (c Collected) ToRows(data [][]any) *rows.MemoryRows {
	return rows.NewMemoryRows(c.Columns, c.ColumnTypes, data)
}

// Collect 读出所有结果集并且关闭它们，出错的时候也会关闭全部结果集
func Collect(ctx context.Context, results []rows.Rows) (Collected, error) {
	cols, err := CheckColumns(results)
	if err != nil {
		return Collected{}, closeAll(err, results)
	}
	// 读完之后结果集就关闭了，所以要提前缓存住列类型
	types, err := results[0].ColumnTypes()
	if err != nil {
		return Collected{}, closeAll(err, results)
	}
	res := Collected{Columns: cols, ColumnTypes: types}
	for i, r := range results {
		if err = ctx.Err(); err != nil {
			return Collected{}, closeAll(err, results[i:])
		}
		data, err := rows.ReadAll(r)
		if err != nil {
			return Collected{}, closeAll(err, results[i+1:])
		}
		res.Data = append(res.Data, data...)
	}
	return res, nil
}

func closeAll(err error, results []rows.Rows) error {
	errList := []error{err}
	for _, r := range results {
		if r != nil {
			errList = append(errList, r.Close())
		}
	}
	return multierr.Combine(errList...)
}
