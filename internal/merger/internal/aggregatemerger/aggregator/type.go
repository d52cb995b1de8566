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
	"database/sql/driver"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/merger/internal/errs"
)

// Aggregator 对同一组的多行数据做聚合，每一行都是完整的行
type Aggregator interface {
	Aggregate(rows [][]any) (any, error)
	// ColumnInfo 聚合结果写回的列
	ColumnInfo() merger.ColumnInfo
	Name() string
}

// New 根据聚合函数创建聚合器，AVG 需要额外的 SUM 和 COUNT 列，使用 NewAVG
func New(col merger.ColumnInfo) (Aggregator, error) {
	switch strings.ToUpper(col.AggregateFunc) {
	case "COUNT":
		return NewCount(col), nil
	case "SUM":
		return NewSum(col), nil
	case "MAX":
		return NewMax(col), nil
	case "MIN":
		return NewMin(col), nil
	}
	return nil, errs.NewAggregatorNotFound(col.AggregateFunc)
}

// number 聚合时统一使用的数字，整数尽量保持整数
type number struct {
	i     int64
	f     float64
	isInt bool
}

func (n number) add(o number) number {
	if n.isInt && o.isInt {
		return number{i: n.i + o.i, isInt: true}
	}
	return number{f: n.float() + o.float()}
}

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

func (n number) value() any {
	if n.isInt {
		return n.i
	}
	return n.f
}

// toNumber 第二个返回值为 false 表示 NULL
func toNumber(v any) (number, bool, error) {
	if vv, ok := v.(driver.Valuer); ok {
		val, err := vv.Value()
		if err != nil {
			return number{}, false, err
		}
		v = val
	}
	switch val := v.(type) {
	case nil:
		return number{}, false, nil
	case []byte:
		return parseNumber(string(val))
	case string:
		return parseNumber(val)
	case float32, float64:
		f, err := cast.ToFloat64E(val)
		return number{f: f}, true, err
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return number{}, false, err
	}
	return number{i: i, isInt: true}, true, nil
}

func parseNumber(s string) (number, bool, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return number{i: i, isInt: true}, true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return number{}, false, err
	}
	return number{f: f}, true, nil
}

// sum 对某一列求和，全部为 NULL 的时候返回 false
func sum(rows [][]any, index int) (number, bool, error) {
	var res number
	res.isInt = true
	valid := false
	for _, row := range rows {
		if index >= len(row) {
			return number{}, false, errs.NewInvalidAggregateColumn("", index)
		}
		n, ok, err := toNumber(row[index])
		if err != nil {
			return number{}, false, err
		}
		if !ok {
			continue
		}
		valid = true
		res = res.add(n)
	}
	return res, valid, nil
}
