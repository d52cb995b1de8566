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

// AVG 不能直接对各个分片的平均值求平均，
// 改写的时候会额外查询 SUM 和 COUNT，这里用它们重新计算
type AVG struct {
	avgColumn   merger.ColumnInfo
	sumColumn   merger.ColumnInfo
	countColumn merger.ColumnInfo
}

func NewAVG(avgInfo, sumInfo, countInfo merger.ColumnInfo) *AVG {
	return &AVG{
		avgColumn:   avgInfo,
		sumColumn:   sumInfo,
		countColumn: countInfo,
	}
}

func (a *AVG) Aggregate(rows [][]any) (any, error) {
	s, ok, err := sum(rows, a.sumColumn.Index)
	if err != nil || !ok {
		return nil, err
	}
	c, _, err := sum(rows, a.countColumn.Index)
	if err != nil {
		return nil, err
	}
	if c.float() == 0 {
		return nil, nil
	}
	return s.float() / c.float(), nil
}

func (a *AVG) ColumnInfo() merger.ColumnInfo {
	return a.avgColumn
}

func (*AVG) Name() string {
	return "AVG"
}
