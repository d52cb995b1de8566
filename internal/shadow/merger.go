package shadow

import (
	"context"
	"strings"

	"github.com/spf13/cast"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

// NewMerger DESCRIBE、SHOW COLUMNS、SHOW TABLES 路由到生产库和影子库的时候，
// 把多个数据源上的元数据叠加成一份，第一列相同的行只保留第一次出现的
func (r *Rule) NewMerger(mc *rule.MergeContext) (merger.Merger, bool, error) {
	stmt := mc.Statement
	if stmt.Kind != statement.KindDAL || mc.Route.Len() < 2 {
		return nil, false, nil
	}
	switch stmt.DAL {
	case statement.DALShowColumns, statement.DALShowTables:
		return overlayMerger{}, true, nil
	}
	return nil, false, nil
}

type overlayMerger struct{}

func (overlayMerger) Merge(ctx context.Context, results []rows.Rows) (rows.Rows, error) {
	collected, err := merger.Collect(ctx, results)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(collected.Data))
	data := make([][]any, 0, len(collected.Data))
	for _, row := range collected.Data {
		if len(row) == 0 {
			continue
		}
		key := strings.ToLower(cast.ToString(row[0]))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		data = append(data, row)
	}
	return collected.ToRows(data), nil
}
