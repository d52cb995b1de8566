package statement

import (
	"fmt"
	"strings"

	"github.com/meoying/dbkernel/internal/errs"
)

// Kind 语句类型
type Kind int

const (
	KindUnknown Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindDDL
	KindDAL
)

var kindNames = map[Kind]string{
	KindUnknown: "UNKNOWN",
	KindSelect:  "SELECT",
	KindInsert:  "INSERT",
	KindUpdate:  "UPDATE",
	KindDelete:  "DELETE",
	KindDDL:     "DDL",
	KindDAL:     "DAL",
}

func (k Kind) String() string {
	return kindNames[k]
}

// ParseKind 大小写不敏感
func ParseKind(name string) (Kind, error) {
	for k, v := range kindNames {
		if strings.EqualFold(v, name) {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: 未知的语句类型 %s", errs.ErrInvalidConfig, name)
}

func (k Kind) IsDML() bool {
	return k == KindInsert || k == KindUpdate || k == KindDelete
}

// IsWrite 除了 SELECT 之外都认为是写语句
func (k Kind) IsWrite() bool {
	return k != KindSelect
}

func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// DALKind DAL 语句的细分类型
type DALKind int

const (
	DALNone DALKind = iota
	// DALShowTables SHOW TABLES 需要看到所有物理库
	DALShowTables
	// DALShowColumns DESCRIBE / SHOW COLUMNS
	DALShowColumns
	DALShowDatabases
	DALOther
)

var dalKindNames = map[DALKind]string{
	DALNone:          "",
	DALShowTables:    "SHOW_TABLES",
	DALShowColumns:   "SHOW_COLUMNS",
	DALShowDatabases: "SHOW_DATABASES",
	DALOther:         "OTHER",
}

func (k DALKind) String() string {
	return dalKindNames[k]
}

func (k *DALKind) UnmarshalText(text []byte) error {
	for kind, name := range dalKindNames {
		if strings.EqualFold(name, string(text)) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: 未知的 DAL 类型 %s", errs.ErrInvalidConfig, text)
}

// Operator 谓词操作符
type Operator string

const (
	OpEQ      Operator = "="
	OpNEQ     Operator = "!="
	OpIn      Operator = "IN"
	OpNotIn   Operator = "NOT IN"
	OpBetween Operator = "BETWEEN"
	OpLT      Operator = "<"
	OpLTEQ    Operator = "<="
	OpGT      Operator = ">"
	OpGTEQ    Operator = ">="
	OpLike    Operator = "LIKE"
)

// IsRange 范围类操作符
func (o Operator) IsRange() bool {
	switch o {
	case OpBetween, OpLT, OpLTEQ, OpGT, OpGTEQ:
		return true
	}
	return false
}

// IsPrecise 可以确定到具体值的操作符
func (o Operator) IsPrecise() bool {
	return o == OpEQ || o == OpIn
}

// Span 原始 SQL 中的一段 [Start, End)。标识符的 Span 不包含引号
type Span struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

func (s Span) IsZero() bool {
	return s.Start == 0 && s.End == 0
}

// Value 字面量或者占位符
type Value struct {
	Literal any `yaml:"literal,omitempty" json:"literal,omitempty"`
	// Param 占位符在参数列表中的下标，nil 表示字面量
	Param *int `yaml:"param,omitempty" json:"param,omitempty"`
	Span  Span `yaml:"span" json:"span"`
}

func LiteralValue(v any, span Span) Value {
	return Value{Literal: v, Span: span}
}

func ParamValue(index int, span Span) Value {
	return Value{Param: &index, Span: span}
}

func (v Value) IsParam() bool {
	return v.Param != nil
}

// Resolve 拿到真实的值
func (v Value) Resolve(params []any) (any, error) {
	if v.Param == nil {
		return v.Literal, nil
	}
	idx := *v.Param
	if idx < 0 || idx >= len(params) {
		return nil, errs.NewParameterNotFoundError(idx, len(params))
	}
	return params[idx], nil
}

// Table 语句中引用到的逻辑表
type Table struct {
	Name  string `yaml:"name" json:"name"`
	Alias string `yaml:"alias,omitempty" json:"alias,omitempty"`
	// Spans 表名在 SQL 中出现的所有位置
	Spans []Span `yaml:"spans,omitempty" json:"spans,omitempty"`
}

// Predicate 单个谓词，例如 order_id = ?
type Predicate struct {
	// Owner SQL 中的限定名，可能是表名也可能是别名，没有限定时为空
	Owner string `yaml:"owner,omitempty" json:"owner,omitempty"`
	// Table binder 解析出来的逻辑表名
	Table      string   `yaml:"table" json:"table"`
	Column     string   `yaml:"column" json:"column"`
	ColumnSpan Span     `yaml:"columnSpan" json:"columnSpan"`
	Op         Operator `yaml:"op" json:"op"`
	Values     []Value  `yaml:"values" json:"values"`
}

// Condition AND 连接的谓词组
type Condition struct {
	Predicates []Predicate `yaml:"predicates" json:"predicates"`
}

// Projection SELECT 列表中的一项
type Projection struct {
	Owner         string `yaml:"owner,omitempty" json:"owner,omitempty"`
	Table         string `yaml:"table,omitempty" json:"table,omitempty"`
	Column        string `yaml:"column" json:"column"`
	Alias         string `yaml:"alias,omitempty" json:"alias,omitempty"`
	AggregateFunc string `yaml:"aggregateFunc,omitempty" json:"aggregateFunc,omitempty"`
	Distinct      bool   `yaml:"distinct,omitempty" json:"distinct,omitempty"`
	// Span 整个投影项的位置
	Span Span `yaml:"span" json:"span"`
	// ColumnSpan 列名的位置，聚合函数时是参数的位置
	ColumnSpan Span `yaml:"columnSpan" json:"columnSpan"`
}

func (p Projection) IsStar() bool {
	return p.Column == "*" && p.AggregateFunc == ""
}

// ResultName 结果集中这一列的名字
func (p Projection) ResultName() string {
	if p.Alias != "" {
		return p.Alias
	}
	if p.AggregateFunc != "" {
		return fmt.Sprintf("%s(%s)", strings.ToUpper(p.AggregateFunc), p.Column)
	}
	return p.Column
}

// OrderItem ORDER BY / GROUP BY 中的一项
type OrderItem struct {
	Column string `yaml:"column" json:"column"`
	// Index 对应 Projections 中的下标
	Index int  `yaml:"index" json:"index"`
	Desc  bool `yaml:"desc,omitempty" json:"desc,omitempty"`
}

// Pagination LIMIT offset, rowCount
type Pagination struct {
	Offset   *Value `yaml:"offset,omitempty" json:"offset,omitempty"`
	RowCount *Value `yaml:"rowCount,omitempty" json:"rowCount,omitempty"`
}

// InsertRow VALUES 中的一行
type InsertRow struct {
	Values []Value `yaml:"values" json:"values"`
	// Span 包含括号
	Span Span `yaml:"span" json:"span"`
}

type Insert struct {
	Table   string   `yaml:"table" json:"table"`
	Columns []string `yaml:"columns" json:"columns"`
	// ColumnsSpan 列名列表括号内的部分
	ColumnsSpan Span        `yaml:"columnsSpan" json:"columnsSpan"`
	Rows        []InsertRow `yaml:"rows" json:"rows"`
	// ValuesSpan 第一行的左括号到最后一行的右括号
	ValuesSpan Span `yaml:"valuesSpan" json:"valuesSpan"`
}

// ColumnIndex 大小写不敏感，找不到返回 -1
func (i *Insert) ColumnIndex(column string) int {
	for idx, c := range i.Columns {
		if strings.EqualFold(c, column) {
			return idx
		}
	}
	return -1
}

// Assignment UPDATE SET col = val
type Assignment struct {
	Table      string `yaml:"table" json:"table"`
	Column     string `yaml:"column" json:"column"`
	ColumnSpan Span   `yaml:"columnSpan" json:"columnSpan"`
	Value      Value  `yaml:"value" json:"value"`
}

// Hint SQL 注释或者连接上携带的提示
type Hint struct {
	// ShardingDatabaseValues 逻辑表 -> 强制分库值
	ShardingDatabaseValues map[string][]any `yaml:"shardingDatabaseValues,omitempty" json:"shardingDatabaseValues,omitempty"`
	// ShardingTableValues 逻辑表 -> 强制分表值
	ShardingTableValues map[string][]any `yaml:"shardingTableValues,omitempty" json:"shardingTableValues,omitempty"`
	WriteRouteOnly      bool             `yaml:"writeRouteOnly,omitempty" json:"writeRouteOnly,omitempty"`
	Shadow              bool             `yaml:"shadow,omitempty" json:"shadow,omitempty"`
	DisableAuditNames   []string         `yaml:"disableAuditNames,omitempty" json:"disableAuditNames,omitempty"`
}
