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

package errs

import (
	"github.com/pkg/errors"
)

var (
	ErrMergerEmptyRows        = errors.New("merger: Rows列表为空")
	ErrMergerRowsClosed       = errors.New("merger: Rows已经关闭")
	ErrMergerRowsDiff         = errors.New("merger: Rows列表中的字段不同")
	ErrMergerRowsIsNull       = errors.New("merger: Rows列表中有元素为nil")
	ErrMergerScanNotNext      = errors.New("merger: Scan之前需要调用Next")
	ErrMergerInvalidDest      = errors.New("merger: Scan的目标数量和列数不一致")
	ErrEmptySortColumns       = errors.New("merger: 排序列为空")
	ErrInvalidSortColumn      = errors.New("merger: 排序列非法")
	ErrInvalidAggregateColumn = errors.New("merger: 聚合列非法")
	ErrInvalidGroupByColumn   = errors.New("merger: 分组列非法")
	ErrInvalidOffsetOrLimit   = errors.New("merger: offset或者limit非法")
	ErrAggregatorNotFound     = errors.New("merger: 不支持的聚合函数")
)

func NewInvalidSortColumn(name string, index int) error {
	return errors.Wrapf(ErrInvalidSortColumn, "列 %s 下标 %d", name, index)
}

func NewInvalidAggregateColumn(name string, index int) error {
	return errors.Wrapf(ErrInvalidAggregateColumn, "列 %s 下标 %d", name, index)
}

func NewAggregatorNotFound(fn string) error {
	return errors.Wrapf(ErrAggregatorNotFound, "%s", fn)
}

func NewMergerRowsDiff(want, got []string) error {
	return errors.Wrapf(ErrMergerRowsDiff, "期望 %v 实际 %v", want, got)
}
