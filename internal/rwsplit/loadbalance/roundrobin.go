package loadbalance

import (
	"github.com/ecodeclub/ekit/syncx"
	"go.uber.org/atomic"
)

// RoundRobin 每一个读写分离组一个计数器。
// 计数器到达当前可用成员数量的时候通过 CAS 归零，成员被启用或者禁用的时候不需要加锁
type RoundRobin struct {
	counters syncx.Map[string, *atomic.Int64]
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (*RoundRobin) Type() string {
	return TypeRoundRobin
}

func (r *RoundRobin) Select(groupName, _ string, readNames []string) string {
	counter, _ := r.counters.LoadOrStore(groupName, atomic.NewInt64(0))
	size := int64(len(readNames))
	counter.CompareAndSwap(size, 0)
	idx := (counter.Inc() - 1) % size
	if idx < 0 {
		idx = -idx
	}
	return readNames[idx]
}
