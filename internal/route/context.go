package route

import (
	"slices"
	"strings"
)

// GeneratedKey INSERT 时自动生成的主键，路由和改写共用同一份
type GeneratedKey struct {
	Column string
	Values []any
}

// Context 一次请求的路由结果，构造之后不可修改。
// 需要调整的时候通过 ToBuilder 拷贝一份再重新构造
type Context struct {
	units []Unit
	// originalDataNodes INSERT 中每一行数据对应的数据节点
	originalDataNodes [][]DataNode
	generatedKey      *GeneratedKey
	needAllSchemas    bool
}

// Units 返回的是拷贝
func (c *Context) Units() []Unit {
	if c == nil {
		return nil
	}
	res := make([]Unit, 0, len(c.units))
	for _, u := range c.units {
		res = append(res, NewUnit(u.DataSource, slices.Clone(u.Tables)...))
	}
	return res
}

func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.units)
}

func (c *Context) IsEmpty() bool {
	return c.Len() == 0
}

// IsSingle 只有一个路由单元，这时候结果不需要归并
func (c *Context) IsSingle() bool {
	return c.Len() == 1
}

func (c *Context) Unit(idx int) Unit {
	return c.units[idx]
}

// NeedAllSchemas 是否需要看到所有的物理库，例如 SHOW TABLES
func (c *Context) NeedAllSchemas() bool {
	return c != nil && c.needAllSchemas
}

func (c *Context) OriginalDataNodes() [][]DataNode {
	if c == nil {
		return nil
	}
	return c.originalDataNodes
}

func (c *Context) GeneratedKey() *GeneratedKey {
	if c == nil {
		return nil
	}
	return c.generatedKey
}

// ActualDataSourceNames 去重并且保持顺序
func (c *Context) ActualDataSourceNames() []string {
	res := make([]string, 0, c.Len())
	if c == nil {
		return res
	}
	for _, u := range c.units {
		if !slices.Contains(res, u.DataSource.ActualName) {
			res = append(res, u.DataSource.ActualName)
		}
	}
	return res
}

// ContainsTable 任意一个路由单元映射了这张逻辑表
func (c *Context) ContainsTable(logicTable string) bool {
	if c == nil {
		return false
	}
	for _, u := range c.units {
		if u.HasLogicTable(logicTable) {
			return true
		}
	}
	return false
}

// LogicTableNames 所有路由单元中出现过的逻辑表
func (c *Context) LogicTableNames() []string {
	var res []string
	if c == nil {
		return res
	}
	for _, u := range c.units {
		for _, t := range u.Tables {
			if !slices.ContainsFunc(res, func(s string) bool { return strings.EqualFold(s, t.LogicName) }) {
				res = append(res, t.LogicName)
			}
		}
	}
	return res
}

func (c *Context) ToBuilder() *Builder {
	b := NewBuilder()
	if c == nil {
		return b
	}
	b.units = c.Units()
	b.originalDataNodes = c.originalDataNodes
	b.generatedKey = c.generatedKey
	b.needAllSchemas = c.needAllSchemas
	return b
}

type Builder struct {
	units             []Unit
	originalDataNodes [][]DataNode
	generatedKey      *GeneratedKey
	needAllSchemas    bool
}

func NewBuilder() *Builder {
	return &Builder{units: []Unit{}}
}

func (b *Builder) AddUnit(units ...Unit) *Builder {
	for _, u := range units {
		b.units = append(b.units, NewUnit(u.DataSource, u.Tables...))
	}
	return b
}

// SetUnits 整体替换
func (b *Builder) SetUnits(units []Unit) *Builder {
	b.units = b.units[:0]
	return b.AddUnit(units...)
}

// Units 构造过程中的路由单元，允许原地修改
func (b *Builder) Units() []Unit {
	return b.units
}

func (b *Builder) SetOriginalDataNodes(nodes [][]DataNode) *Builder {
	b.originalDataNodes = nodes
	return b
}

func (b *Builder) SetGeneratedKey(key *GeneratedKey) *Builder {
	b.generatedKey = key
	return b
}

func (b *Builder) SetNeedAllSchemas(need bool) *Builder {
	b.needAllSchemas = need
	return b
}

func (b *Builder) Build() *Context {
	units := make([]Unit, 0, len(b.units))
	for _, u := range b.units {
		units = append(units, NewUnit(u.DataSource, slices.Clone(u.Tables)...))
	}
	return &Context{
		units:             units,
		originalDataNodes: b.originalDataNodes,
		generatedKey:      b.generatedKey,
		needAllSchemas:    b.needAllSchemas,
	}
}
