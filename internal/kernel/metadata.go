package kernel

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/executor"
	"github.com/meoying/dbkernel/internal/rewrite"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rule"
)

// MetadataLoader 读出物理数据源上一张真实表的列名，按照表定义的顺序
type MetadataLoader interface {
	Columns(ctx context.Context, dataSource, table string) ([]string, error)
}

// QueryLoader 通过一条不返回数据的查询拿到列名
type QueryLoader struct {
	Executor *executor.Engine
}

func (l QueryLoader) Columns(ctx context.Context, dataSource, table string) ([]string, error) {
	res, err := l.Executor.Query(ctx, []rewrite.ExecutionUnit{{
		DataSource: dataSource,
		SQL:        "SELECT * FROM " + table + " WHERE 1 = 0",
	}})
	if err != nil {
		return nil, err
	}
	cols, err := res[0].Columns()
	return cols, multierr.Combine(err, res[0].Close())
}

// LoadMetadata 加载所有分片表的列，生成新的快照。
// 开启 check-table-metadata-enabled 的时候，同一张逻辑表下面的真实表列必须完全一致
func (k *Kernel) LoadMetadata(ctx context.Context, loader MetadataLoader) error {
	snapshot := k.holder.Load()
	schema := snapshot.Schema
	aggregated := aggregatedDataSources(snapshot.Rules)
	for _, c := range rule.Resolve[rule.ShardedTableContainer](snapshot.Rules) {
		for _, logic := range c.ShardedTables() {
			cols, err := loadTable(ctx, loader, logic, c.DataNodes(logic), aggregated, snapshot.Props.CheckTableMetadata)
			if err != nil {
				return err
			}
			schema = schema.WithTable(logic, cols)
		}
	}
	next := *snapshot
	next.Schema = schema
	k.holder.Swap(&next)
	k.l.Info("元数据加载完成", slog.Uint64("generation", next.Generation))
	return nil
}

func loadTable(ctx context.Context, loader MetadataLoader, logic string, nodes []route.DataNode,
	aggregated map[string][]string, check bool) ([]string, error) {
	var expect []string
	var expectNode route.DataNode
	for i, n := range nodes {
		cols, err := loader.Columns(ctx, primary(n.DataSource, aggregated), n.Table)
		if err != nil {
			return nil, errors.Wrapf(err, "读取 %s 的元数据失败", n)
		}
		if i == 0 {
			expect, expectNode = cols, n
			if !check {
				break
			}
			continue
		}
		if !slices.EqualFunc(expect, cols, strings.EqualFold) {
			return nil, errs.NewMetadataMismatchError(logic, n.String(), expectNode.String())
		}
	}
	return expect, nil
}

func aggregatedDataSources(rules []rule.Rule) map[string][]string {
	res := make(map[string][]string, 4)
	for _, c := range rule.Resolve[rule.DataSourceContainer](rules) {
		for name, members := range c.AggregatedDataSources() {
			res[strings.ToLower(name)] = members
		}
	}
	return res
}

// primary 逻辑数据源一路找到第一个成员，也就是写库或者生产库
func primary(name string, aggregated map[string][]string) string {
	for i := 0; i <= len(aggregated); i++ {
		members, ok := aggregated[strings.ToLower(name)]
		if !ok || len(members) == 0 {
			return name
		}
		name = members[0]
	}
	return name
}
