package sharding

import (
	"slices"
	"strings"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rule"
	shardingerrs "github.com/meoying/dbkernel/internal/sharding/internal/errs"
	"github.com/meoying/dbkernel/internal/statement"
)

const TypeDMLShardingConditions = "DML_SHARDING_CONDITIONS"

// Auditor 分片审计算法，在路由之前检查语句
type Auditor interface {
	Type() string
	Check(stmt *statement.Statement, tables []*TableRule) error
}

var Auditors = func() *base.Registry[Auditor] {
	r := base.NewRegistry[Auditor]("sharding-audit")
	r.Register(TypeDMLShardingConditions, func(*base.Props) (Auditor, error) {
		return dmlShardingConditions{}, nil
	})
	return r
}()

// dmlShardingConditions UPDATE 和 DELETE 必须带上分片条件，避免误操作全部分片
type dmlShardingConditions struct{}

func (dmlShardingConditions) Type() string {
	return TypeDMLShardingConditions
}

func (dmlShardingConditions) Check(stmt *statement.Statement, tables []*TableRule) error {
	if stmt.Kind != statement.KindUpdate && stmt.Kind != statement.KindDelete {
		return nil
	}
	for _, tr := range tables {
		if tr.isHintOnly() {
			continue
		}
		cols := tr.ShardingColumns()
		if len(cols) == 0 {
			continue
		}
		if !hasShardingCondition(stmt, tr.LogicTable, cols) {
			return shardingerrs.NewMissingShardingConditionError(tr.LogicTable)
		}
	}
	return nil
}

// hasShardingCondition 每一个 OR 分支都要有分片列上的条件
func hasShardingCondition(stmt *statement.Statement, table string, cols []string) bool {
	groups := stmt.PredicatesOf(table)
	if len(groups) == 0 {
		return false
	}
	for _, g := range groups {
		if !slices.ContainsFunc(g, func(p statement.Predicate) bool {
			return slices.Contains(cols, strings.ToLower(p.Column)) && (p.Op.IsPrecise() || p.Op.IsRange())
		}) {
			return false
		}
	}
	return true
}

// auditChecker 一个审计算法以及使用它的逻辑表
type auditChecker struct {
	name             string
	auditor          Auditor
	allowHintDisable bool
	tables           []string
}

var (
	_ rule.Checker         = &auditChecker{}
	_ rule.HintDisableable = &auditChecker{}
)

func (c *auditChecker) Name() string {
	return c.name
}

func (c *auditChecker) AllowHintDisable() bool {
	return c.allowHintDisable
}

func (c *auditChecker) IsCheck(stmt *statement.Statement) bool {
	if !stmt.Kind.IsDML() {
		return false
	}
	return slices.ContainsFunc(stmt.TableNames(), func(t string) bool {
		return slices.ContainsFunc(c.tables, func(s string) bool { return strings.EqualFold(s, t) })
	})
}

func (c *auditChecker) Check(r rule.Rule, _ rule.Grantee, _ *rule.Schema, stmt *statement.Statement) error {
	sr, ok := r.(*Rule)
	if !ok {
		return errs.NewRuleMismatchError(r.Name(), r.Kind().String(), rule.KindSharding.String())
	}
	var tables []*TableRule
	for _, t := range stmt.TableNames() {
		if !slices.ContainsFunc(c.tables, func(s string) bool { return strings.EqualFold(s, t) }) {
			continue
		}
		if tr, ok := sr.TableRule(t); ok {
			tables = append(tables, tr)
		}
	}
	return c.auditor.Check(stmt, tables)
}

func (r *Rule) initAuditors(cfg RuleConfiguration) error {
	auditors, err := Auditors.NewAll(cfg.Auditors)
	if err != nil {
		return err
	}
	checkers := make(map[string]*auditChecker, len(auditors))
	for _, name := range r.tableNames {
		tc := cfg.Tables[name]
		strategy := tc.AuditStrategy
		if strategy == nil {
			strategy = cfg.DefaultAuditStrategy
		}
		if strategy == nil {
			continue
		}
		for _, an := range strategy.AuditorNames {
			auditor, ok := auditors[an]
			if !ok {
				return errs.NewInvalidConfigError("逻辑表 %s 引用的审计算法 %s 不存在", name, an)
			}
			c, ok := checkers[an]
			if !ok {
				c = &auditChecker{name: an, auditor: auditor}
				checkers[an] = c
				r.auditors = append(r.auditors, c)
			}
			c.allowHintDisable = c.allowHintDisable || strategy.AllowHintDisable
			c.tables = append(c.tables, name)
		}
	}
	return nil
}

// Checkers 按照审计算法在配置中第一次出现的顺序
func (r *Rule) Checkers() []rule.Checker {
	res := make([]rule.Checker, 0, len(r.auditors))
	for _, c := range r.auditors {
		res = append(res, c)
	}
	return res
}
