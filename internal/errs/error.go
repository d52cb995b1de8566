package errs

import (
	"errors"
	"fmt"
)

// 配置/元数据不一致
var (
	ErrRuleMismatch      = errors.New("dbkernel: 规则与元数据不一致")
	ErrInvalidConfig     = errors.New("dbkernel: 非法配置")
	ErrAlgorithmNotFound = errors.New("dbkernel: 未找到算法")
)

// 不支持的 SQL
var ErrUnsupportedOperation = errors.New("dbkernel: 不支持的操作")

// 路由
var (
	ErrNoRouteTarget      = errors.New("dbkernel: 没有可用的路由目标")
	ErrMissingShardingKey = errors.New("dbkernel: sharding key 未设置")
)

// 执行
var ErrDataSourceNotFound = errors.New("dbkernel: 未找到物理数据源")

// 改写
var (
	ErrTokenOverlap       = errors.New("dbkernel: SQL token 重叠")
	ErrParameterNotFound  = errors.New("dbkernel: 参数下标越界")
	ErrInsertColumnsEmpty = errors.New("dbkernel: INSERT 语句缺少列名列表")
)

// 结果归并与装饰
var (
	ErrDecorate = errors.New("dbkernel: 结果集装饰失败")
	ErrDecrypt  = errors.New("dbkernel: 解密失败")
)

func NewRuleMismatchError(table string, rules ...string) error {
	return fmt.Errorf("%w: 逻辑表 %s 同时被不兼容的规则 %v 声明", ErrRuleMismatch, table, rules)
}

func NewMetadataMismatchError(logicTable, actualTable, expectTable string) error {
	return fmt.Errorf("%w: 逻辑表 %s 的真实表 %s 与 %s 列结构不同", ErrRuleMismatch, logicTable, actualTable, expectTable)
}

func NewInvalidConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func NewAlgorithmNotFoundError(kind, name string) error {
	return fmt.Errorf("%w: %s 类型 %s", ErrAlgorithmNotFound, kind, name)
}

// NewUnsupportedOperationError construct 是被拒绝的 SQL 结构，例如 COMBINE
func NewUnsupportedOperationError(construct, reason string) error {
	return fmt.Errorf("%w: %s, %s", ErrUnsupportedOperation, construct, reason)
}

func NewNoRouteTargetError(table string) error {
	return fmt.Errorf("%w: 逻辑表 %s", ErrNoRouteTarget, table)
}

func NewMissingShardingKeyError(table, column string) error {
	return fmt.Errorf("%w: 逻辑表 %s 缺少分片列 %s", ErrMissingShardingKey, table, column)
}

func NewTokenOverlapError(prevEnd, nextStart int) error {
	return fmt.Errorf("%w: 前一个 token 结束于 %d, 后一个 token 开始于 %d", ErrTokenOverlap, prevEnd, nextStart)
}

func NewParameterNotFoundError(index, size int) error {
	return fmt.Errorf("%w: 下标 %d, 参数个数 %d", ErrParameterNotFound, index, size)
}

// NewDecryptError 解密失败需要能定位到具体的列和行
func NewDecryptError(column string, row int, err error) error {
	return fmt.Errorf("%w: 列 %s 第 %d 行: %w", ErrDecrypt, column, row, err)
}

func NewDecorateError(column string, row int, err error) error {
	return fmt.Errorf("%w: 列 %s 第 %d 行: %w", ErrDecorate, column, row, err)
}

func NewDataSourceNotFoundError(name string) error {
	return fmt.Errorf("%w: %s", ErrDataSourceNotFound, name)
}
