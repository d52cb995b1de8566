package sqltoken

import (
	"sort"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/route"
	"github.com/meoying/dbkernel/internal/statement"
)

// Token 原始 SQL 中的一段替换，区间是 [Start, End)。
// Start == End 表示在这个位置插入
type Token interface {
	Start() int
	End() int
	// Text 替换之后的文本，和路由单元相关的 token 会根据单元生成不同的内容
	Text(unit route.Unit) string
}

type span struct {
	start int
	end   int
}

func (s span) Start() int {
	return s.start
}

func (s span) End() int {
	return s.end
}

// Substitution 和路由单元无关的固定替换
type Substitution struct {
	span
	text string
}

func NewSubstitution(sp statement.Span, text string) *Substitution {
	return &Substitution{span: span{start: sp.Start, end: sp.End}, text: text}
}

// NewInsertion 在 pos 的位置插入一段文本
func NewInsertion(pos int, text string) *Substitution {
	return &Substitution{span: span{start: pos, end: pos}, text: text}
}

func (s *Substitution) Text(route.Unit) string {
	return s.text
}

// TableToken 逻辑表名替换成路由单元上的真实表名
type TableToken struct {
	span
	logicTable string
}

func NewTableToken(sp statement.Span, logicTable string) *TableToken {
	return &TableToken{span: span{start: sp.Start, end: sp.End}, logicTable: logicTable}
}

func (t *TableToken) Text(unit route.Unit) string {
	return unit.ActualTableName(t.logicTable)
}

// List 一次改写收集到的所有 token
type List struct {
	tokens []Token
}

func (l *List) Add(tokens ...Token) {
	l.tokens = append(l.tokens, tokens...)
}

func (l *List) Len() int {
	return len(l.tokens)
}

// Sorted 按照起始位置排序，插入类的 token 排在同位置的替换前面
func (l *List) Sorted() []Token {
	res := make([]Token, len(l.tokens))
	copy(res, l.tokens)
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Start() != res[j].Start() {
			return res[i].Start() < res[j].Start()
		}
		return res[i].End() < res[j].End()
	})
	return res
}

// Check token 之间不能重叠，只需要在每次请求改写之前检查一次
func Check(sql string, tokens []Token) error {
	prevEnd := 0
	for _, t := range tokens {
		if t.Start() > t.End() || t.End() > len(sql) {
			return errs.NewTokenOverlapError(t.Start(), t.End())
		}
		if t.Start() < prevEnd {
			return errs.NewTokenOverlapError(prevEnd, t.Start())
		}
		prevEnd = t.End()
	}
	return nil
}

// Build 按顺序把 token 应用到原始 SQL 上。tokens 必须是已经排序并且检查过的
func Build(sql string, tokens []Token, unit route.Unit) string {
	if len(tokens) == 0 {
		return sql
	}
	buffer := bytebufferpool.Get()
	defer bytebufferpool.Put(buffer)
	cursor := 0
	for _, t := range tokens {
		_, _ = buffer.WriteString(sql[cursor:t.Start()])
		_, _ = buffer.WriteString(t.Text(unit))
		cursor = t.End()
	}
	_, _ = buffer.WriteString(sql[cursor:])
	return buffer.String()
}

// Literal 把值格式化成 SQL 字面量
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(val)
	case []byte:
		return quote(string(val))
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return toString(val)
	default:
		return quote(toString(val))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
