package errs

import (
	"fmt"

	"github.com/meoying/dbkernel/internal/errs"
)

// NewInsertMultipleDataNodesError INSERT 的一行数据只能落到一个数据节点上
func NewInsertMultipleDataNodesError(table string, row int, nodes []string) error {
	return errs.NewUnsupportedOperationError("INSERT",
		fmt.Sprintf("逻辑表 %s 第 %d 行数据路由到了多个数据节点 %v", table, row, nodes))
}

// NewBindingTableError 绑定表在同一个数据源上的真实表数量必须一致
func NewBindingTableError(primary, table, ds string) error {
	return errs.NewInvalidConfigError("绑定表 %s 和 %s 在数据源 %s 上的真实表数量不一致", primary, table, ds)
}

func NewStrategyConflictError(table string) error {
	return errs.NewInvalidConfigError("逻辑表 %s 的分片策略只能配置 standard、complex、hint、none 中的一种", table)
}

func NewMissingShardingConditionError(table string) error {
	return errs.NewUnsupportedOperationError("DML", fmt.Sprintf("逻辑表 %s 缺少分片条件", table))
}
