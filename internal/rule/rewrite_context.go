package rule

import (
	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rewrite/parameter"
	"github.com/meoying/dbkernel/internal/rewrite/sqltoken"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/statement"
)

// RewriteContext 一次请求的改写上下文，多个 Rewriter 按顺序往里面添加 token。
// INSERT 的列名和值由分片和加密共同修改，所以只创建一份
type RewriteContext struct {
	Statement  *statement.Statement
	Params     []any
	Route      *route.Context
	Tokens     *sqltoken.List
	Parameters parameter.Builder

	insertColumns *sqltoken.InsertColumnsToken
	insertValues  *sqltoken.InsertValuesToken
}

func NewRewriteContext(stmt *statement.Statement, params []any, rc *route.Context) *RewriteContext {
	c := &RewriteContext{
		Statement: stmt,
		Params:    params,
		Route:     rc,
		Tokens:    &sqltoken.List{},
	}
	if stmt.Insert != nil && len(stmt.Insert.Rows) > 0 {
		groups := make([][]int, 0, len(stmt.Insert.Rows))
		for _, row := range stmt.Insert.Rows {
			group := make([]int, 0, len(row.Values))
			for _, v := range row.Values {
				if v.IsParam() {
					group = append(group, *v.Param)
				}
			}
			groups = append(groups, group)
		}
		c.Parameters = parameter.NewGroupedBuilder(params, groups)
	} else {
		c.Parameters = parameter.NewStandardBuilder(params)
	}
	return c
}

// Grouped 多行 INSERT 的时候返回分组的参数
func (c *RewriteContext) Grouped() (*parameter.GroupedBuilder, bool) {
	b, ok := c.Parameters.(*parameter.GroupedBuilder)
	return b, ok
}

// InsertColumns 没有列名列表的 INSERT 无法改写列
func (c *RewriteContext) InsertColumns() (*sqltoken.InsertColumnsToken, error) {
	if c.insertColumns != nil {
		return c.insertColumns, nil
	}
	insert := c.Statement.Insert
	if insert == nil || len(insert.Columns) == 0 || insert.ColumnsSpan.IsZero() {
		return nil, errs.ErrInsertColumnsEmpty
	}
	c.insertColumns = sqltoken.NewInsertColumnsToken(insert)
	c.Tokens.Add(c.insertColumns)
	return c.insertColumns, nil
}

func (c *RewriteContext) InsertValues() *sqltoken.InsertValuesToken {
	if c.insertValues != nil {
		return c.insertValues
	}
	c.insertValues = sqltoken.NewInsertValuesToken(c.Statement.SQL, c.Statement.Insert, c.Route.OriginalDataNodes())
	c.Tokens.Add(c.insertValues)
	return c.insertValues
}

// HasInsertValues 有没有 Rewriter 改动过 VALUES
func (c *RewriteContext) HasInsertValues() bool {
	return c.insertValues != nil
}
