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

package heap

import (
	"container/heap"

	"github.com/meoying/dbkernel/internal/merger"
)

// Heap 每个结果集当前行组成的小顶堆，堆顶是排序之后的下一行
type Heap struct {
	nodes       []*Node
	sortColumns merger.SortColumns
}

func NewHeap(h []*Node, sortColumns merger.SortColumns) *Heap {
	hp := &Heap{nodes: h, sortColumns: sortColumns}
	heap.Init(hp)
	return hp
}

func (h *Heap) Len() int {
	return len(h.nodes)
}

func (h *Heap) Less(i, j int) bool {
	for k := 0; k < h.sortColumns.Len(); k++ {
		res := merger.CompareValues(h.nodes[i].SortColumnValues[k],
			h.nodes[j].SortColumnValues[k], h.sortColumns.Get(k).Order)
		if res != 0 {
			return res < 0
		}
	}
	// 排序列相同的时候按照结果集的顺序输出
	return h.nodes[i].RowsListIndex < h.nodes[j].RowsListIndex
}

func (h *Heap) Swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
}

func (h *Heap) Push(x any) {
	h.nodes = append(h.nodes, x.(*Node))
}

func (h *Heap) Pop() any {
	v := h.nodes[len(h.nodes)-1]
	h.nodes = h.nodes[:len(h.nodes)-1]
	return v
}

type Node struct {
	RowsListIndex int
	// 用于排序的列
	SortColumnValues []any
	// 完整的行，不参与排序
	ColumnValues []any
}

// NewNode 用完整的行构造节点
func NewNode(index int, values []any, sortColumns merger.SortColumns) *Node {
	sortValues := make([]any, sortColumns.Len())
	for i, c := range sortColumns.Cols() {
		sortValues[i] = values[c.Index]
	}
	return &Node{
		RowsListIndex:    index,
		SortColumnValues: sortValues,
		ColumnValues:     values,
	}
}
