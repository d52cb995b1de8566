package shadow

import (
	"regexp"
	"strings"

	"github.com/spf13/cast"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/statement"
)

const (
	TypeValueMatch = "VALUE_MATCH"
	TypeRegexMatch = "REGEX_MATCH"
	TypeSQLHint    = "SQL_HINT"
)

// Algorithm 影子算法，ColumnAlgorithm 或者 HintAlgorithm
type Algorithm interface {
	Type() string
}

// ColumnValue 语句中某张表某一列上的一个值
type ColumnValue struct {
	Table  string
	Column string
	Value  any
}

// ColumnAlgorithm 根据列的值判断。只对 Operation 类型的语句生效
type ColumnAlgorithm interface {
	Algorithm
	Operation() statement.Kind
	Column() string
	IsShadow(table string, value ColumnValue) bool
}

// HintAlgorithm 根据语句上的 hint 判断
type HintAlgorithm interface {
	Algorithm
	IsShadow(hint statement.Hint) bool
}

var Algorithms = func() *base.Registry[Algorithm] {
	r := base.NewRegistry[Algorithm]("shadow")
	r.Register(TypeValueMatch, newValueMatch)
	r.Register(TypeRegexMatch, newRegexMatch)
	r.Register(TypeSQLHint, func(*base.Props) (Algorithm, error) {
		return sqlHint{}, nil
	})
	return r
}()

type columnMatch struct {
	operation statement.Kind
	column    string
}

func newColumnMatch(props *base.Props) (columnMatch, error) {
	op, err := props.RequiredString("operation")
	if err != nil {
		return columnMatch{}, err
	}
	kind, err := statement.ParseKind(op)
	if err != nil {
		return columnMatch{}, err
	}
	if kind != statement.KindSelect && !kind.IsDML() {
		return columnMatch{}, errs.NewInvalidConfigError("影子算法只支持 insert、update、delete、select，不支持 %s", op)
	}
	col, err := props.RequiredString("column")
	if err != nil {
		return columnMatch{}, err
	}
	return columnMatch{operation: kind, column: col}, nil
}

func (c columnMatch) Operation() statement.Kind {
	return c.operation
}

func (c columnMatch) Column() string {
	return c.column
}

// accept 表名必须和影子表完全一致，包括大小写，不一致的时候认为不是影子流量。
// 列名不区分大小写
func (c columnMatch) accept(table string, value ColumnValue) bool {
	return table == value.Table && strings.EqualFold(c.column, value.Column)
}

type valueMatch struct {
	columnMatch
	value string
}

func newValueMatch(props *base.Props) (Algorithm, error) {
	cm, err := newColumnMatch(props)
	if err != nil {
		return nil, err
	}
	if !props.Has("value") {
		return nil, errs.NewInvalidConfigError("VALUE_MATCH 缺少属性 value")
	}
	return &valueMatch{columnMatch: cm, value: props.String("value", "")}, nil
}

func (*valueMatch) Type() string {
	return TypeValueMatch
}

func (v *valueMatch) IsShadow(table string, value ColumnValue) bool {
	if !v.accept(table, value) {
		return false
	}
	s, err := cast.ToStringE(value.Value)
	return err == nil && s == v.value
}

type regexMatch struct {
	columnMatch
	regex *regexp.Regexp
}

func newRegexMatch(props *base.Props) (Algorithm, error) {
	cm, err := newColumnMatch(props)
	if err != nil {
		return nil, err
	}
	expr, err := props.RequiredString("regex")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errs.NewInvalidConfigError("REGEX_MATCH 正则表达式 %s 非法: %s", expr, err)
	}
	return &regexMatch{columnMatch: cm, regex: re}, nil
}

func (*regexMatch) Type() string {
	return TypeRegexMatch
}

func (r *regexMatch) IsShadow(table string, value ColumnValue) bool {
	if !r.accept(table, value) {
		return false
	}
	s, err := cast.ToStringE(value.Value)
	return err == nil && r.regex.MatchString(s)
}

type sqlHint struct{}

func (sqlHint) Type() string {
	return TypeSQLHint
}

func (sqlHint) IsShadow(hint statement.Hint) bool {
	return hint.Shadow
}
