package rule

import (
	"fmt"

	"github.com/meoying/dbkernel/internal/merger"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/rows"
	"github.com/meoying/dbkernel/internal/statement"
)

// Kind 规则的种类是一个封闭集合，每一种都带有固定的执行顺序
type Kind int

const (
	KindSharding Kind = iota
	KindReadwriteSplitting
	KindShadow
	KindEncrypt
	KindMask
)

var kindMeta = map[Kind]struct {
	name  string
	order int
}{
	KindSharding:           {name: "sharding", order: 0},
	KindReadwriteSplitting: {name: "readwrite-splitting", order: 10},
	KindShadow:             {name: "shadow", order: 20},
	KindEncrypt:            {name: "encrypt", order: 30},
	KindMask:               {name: "mask", order: 40},
}

func (k Kind) String() string {
	if m, ok := kindMeta[k]; ok {
		return m.name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Order 越小越先执行
func (k Kind) Order() int {
	return kindMeta[k].order
}

// Rule 所有规则的公共部分。规则在加载配置的时候创建，之后只读，
// 可变的状态只能放在原子变量或者并发安全的容器里
type Rule interface {
	Kind() Kind
	// Name 配置里面的名字，用于错误信息和日志
	Name() string
}

// Router 缩小或者生成路由结果，例如分片
type Router interface {
	Rule
	// Route current 是前面的规则产生的路由结果，可能为空
	Route(req *RouteRequest, current *route.Context) (*route.Context, error)
}

// RouteDecorator 在已经完整的路由结果上调整数据源，例如读写分离、影子库
type RouteDecorator interface {
	Rule
	DecorateRoute(req *RouteRequest, current *route.Context) (*route.Context, error)
}

// Rewriter 往改写上下文里面添加 token 或者修改参数
type Rewriter interface {
	Rule
	Rewrite(rc *RewriteContext) error
}

// ResultMerger 负责把多个结果集合并成一个。
// 第一个返回 true 的规则会被用作基础结果集
type ResultMerger interface {
	Rule
	NewMerger(mc *MergeContext) (merger.Merger, bool, error)
}

// ResultDecorator 在结果集上做值的转换，不能跳过或者额外推进行
type ResultDecorator interface {
	Rule
	Decorate(mc *MergeContext, r rows.Rows) (rows.Rows, error)
}

// AuditChecker 在路由之前执行的检查
type AuditChecker interface {
	Rule
	Checkers() []Checker
}

// TableKind 逻辑表在数据节点类规则中的形态
type TableKind int

const (
	TableSharded TableKind = iota + 1
	TableBroadcast
)

func (k TableKind) String() string {
	switch k {
	case TableSharded:
		return "sharded"
	case TableBroadcast:
		return "broadcast"
	}
	return "unknown"
}

// DataNodeContainer 声明了逻辑表到数据节点映射的规则
type DataNodeContainer interface {
	Rule
	TableKind(logicTable string) (TableKind, bool)
	DataNodes(logicTable string) []route.DataNode
}

// ShardedTableContainer 逻辑表背后有多张真实表的规则，用来加载和校验元数据
type ShardedTableContainer interface {
	DataNodeContainer
	ShardedTables() []string
}

// DataSourceContainer 声明了逻辑数据源的规则，返回逻辑数据源到成员的映射
type DataSourceContainer interface {
	Rule
	AggregatedDataSources() map[string][]string
}

// Checker 审计检查
type Checker interface {
	Name() string
	// IsCheck 判断成本很低，只有返回 true 才会执行 Check
	IsCheck(stmt *statement.Statement) bool
	Check(r Rule, grantee Grantee, schema *Schema, stmt *statement.Statement) error
}

// HintDisableable 允许通过 hint 跳过的检查
type HintDisableable interface {
	AllowHintDisable() bool
}

type Grantee struct {
	User string
	Host string
}

// Connection 连接级别的上下文
type Connection struct {
	Grantee       Grantee
	InTransaction bool
}

type RouteRequest struct {
	Statement  *statement.Statement
	Params     []any
	Connection Connection
	// DataSources 逻辑数据源，有序
	DataSources []string
	// DefaultDataSource 没有被任何规则管理的表路由到这里
	DefaultDataSource string
}

type MergeContext struct {
	Statement *statement.Statement
	Params    []any
	Route     *route.Context
}
