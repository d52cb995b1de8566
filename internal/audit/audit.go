package audit

import (
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

type Option func(e *Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

// Engine 在路由之前执行所有规则的检查，所有违反的检查都会返回，而不是遇到第一个就停下
type Engine struct {
	l *slog.Logger
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{l: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Request struct {
	Statement *statement.Statement
	Grantee   rule.Grantee
	Schema    *rule.Schema
	Rules     []rule.Rule
}

func (e *Engine) Check(req Request) error {
	var res *multierror.Error
	for _, r := range rule.Resolve[rule.AuditChecker](req.Rules) {
		for _, c := range r.Checkers() {
			if disabledByHint(req.Statement.Hint, c) {
				e.l.Debug("检查被 hint 跳过", slog.String("checker", c.Name()), slog.String("rule", r.Name()))
				continue
			}
			if !c.IsCheck(req.Statement) {
				continue
			}
			if err := c.Check(r, req.Grantee, req.Schema, req.Statement); err != nil {
				res = multierror.Append(res, errors.Wrapf(err, "%s 规则 %s 的检查 %s", r.Kind(), r.Name(), c.Name()))
			}
		}
	}
	if err := res.ErrorOrNil(); err != nil {
		e.l.Warn("审计未通过", slog.String("sql", req.Statement.SQL), slog.Any("err", err))
		return err
	}
	return nil
}

func disabledByHint(hint statement.Hint, c rule.Checker) bool {
	d, ok := c.(rule.HintDisableable)
	if !ok || !d.AllowHintDisable() {
		return false
	}
	for _, name := range hint.DisableAuditNames {
		if strings.EqualFold(strings.TrimSpace(name), c.Name()) {
			return true
		}
	}
	return false
}
