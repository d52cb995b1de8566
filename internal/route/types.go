package route

import (
	"fmt"
	"strings"

	"github.com/meoying/dbkernel/internal/errs"
)

// Mapper 逻辑名到真实名的映射，例如 t_order -> t_order_0
type Mapper struct {
	LogicName  string `json:"logicName"`
	ActualName string `json:"actualName"`
}

func Identity(name string) Mapper {
	return Mapper{LogicName: name, ActualName: name}
}

func (m Mapper) String() string {
	return fmt.Sprintf("%s->%s", m.LogicName, m.ActualName)
}

// Unit 一个物理数据源以及路由到它上面的表
type Unit struct {
	DataSource Mapper   `json:"dataSource"`
	Tables     []Mapper `json:"tables"`
}

func NewUnit(ds Mapper, tables ...Mapper) Unit {
	if tables == nil {
		tables = []Mapper{}
	}
	return Unit{DataSource: ds, Tables: tables}
}

// ActualTableNames 大小写不敏感
func (u Unit) ActualTableNames(logicTable string) []string {
	res := make([]string, 0, 1)
	for _, t := range u.Tables {
		if strings.EqualFold(t.LogicName, logicTable) {
			res = append(res, t.ActualName)
		}
	}
	return res
}

// ActualTableName 第一个匹配的真实表，找不到返回逻辑表本身
func (u Unit) ActualTableName(logicTable string) string {
	names := u.ActualTableNames(logicTable)
	if len(names) == 0 {
		return logicTable
	}
	return names[0]
}

// LogicTableName 根据真实表反查逻辑表
func (u Unit) LogicTableName(actualTable string) (string, bool) {
	for _, t := range u.Tables {
		if strings.EqualFold(t.ActualName, actualTable) {
			return t.LogicName, true
		}
	}
	return "", false
}

func (u Unit) HasLogicTable(logicTable string) bool {
	return len(u.ActualTableNames(logicTable)) > 0
}

// DataNodeOf 这个单元上某张逻辑表对应的数据节点
func (u Unit) DataNodeOf(logicTable string) DataNode {
	return DataNode{DataSource: u.DataSource.LogicName, Table: u.ActualTableName(logicTable)}
}

func (u Unit) String() string {
	tables := make([]string, 0, len(u.Tables))
	for _, t := range u.Tables {
		tables = append(tables, t.String())
	}
	return fmt.Sprintf("%s[%s]", u.DataSource, strings.Join(tables, ","))
}

// DataNode 真实的数据节点，数据源 + 真实表
type DataNode struct {
	DataSource string `json:"dataSource"`
	Table      string `json:"table"`
}

// ParseDataNode 解析 ds.table 形式的数据节点
func ParseDataNode(node string) (DataNode, error) {
	segs := strings.Split(strings.TrimSpace(node), ".")
	if len(segs) != 2 || segs[0] == "" || segs[1] == "" {
		return DataNode{}, errs.NewInvalidConfigError("非法的数据节点 %q，应该是 ds.table 的形式", node)
	}
	return DataNode{DataSource: segs[0], Table: segs[1]}, nil
}

func (n DataNode) String() string {
	return n.DataSource + "." + n.Table
}

// Equal 大小写不敏感
func (n DataNode) Equal(other DataNode) bool {
	return strings.EqualFold(n.DataSource, other.DataSource) && strings.EqualFold(n.Table, other.Table)
}
