package audit

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

type stubRule struct {
	kind     rule.Kind
	name     string
	checkers []rule.Checker
}

func (s *stubRule) Kind() rule.Kind {
	return s.kind
}

func (s *stubRule) Name() string {
	return s.name
}

func (s *stubRule) Checkers() []rule.Checker {
	return s.checkers
}

type stubChecker struct {
	name         string
	isCheck      bool
	err          error
	hintDisable  bool
	checkedCount *int
}

func (s *stubChecker) Name() string {
	return s.name
}

func (s *stubChecker) IsCheck(*statement.Statement) bool {
	return s.isCheck
}

func (s *stubChecker) Check(rule.Rule, rule.Grantee, *rule.Schema, *statement.Statement) error {
	if s.checkedCount != nil {
		*s.checkedCount++
	}
	return s.err
}

func (s *stubChecker) AllowHintDisable() bool {
	return s.hintDisable
}

func TestEngine_Check(t *testing.T) {
	errCombine := errs.NewUnsupportedOperationError("COMBINE", "加密表")
	errDML := errs.NewUnsupportedOperationError("DELETE", "缺少分片条件")
	testcases := []struct {
		name      string
		rules     func(count *int) []rule.Rule
		hint      statement.Hint
		wantErrs  []error
		wantCount int
	}{
		{
			name: "没有检查",
			rules: func(count *int) []rule.Rule {
				return []rule.Rule{&stubRule{kind: rule.KindReadwriteSplitting, name: "rw"}}
			},
		},
		{
			name: "IsCheck返回false不执行",
			rules: func(count *int) []rule.Rule {
				return []rule.Rule{&stubRule{kind: rule.KindEncrypt, name: "encrypt", checkers: []rule.Checker{
					&stubChecker{name: "encrypt-combine", err: errCombine, checkedCount: count},
				}}}
			},
		},
		{
			name: "所有违反的检查都按照规则顺序返回",
			rules: func(count *int) []rule.Rule {
				return []rule.Rule{
					&stubRule{kind: rule.KindEncrypt, name: "encrypt", checkers: []rule.Checker{
						&stubChecker{name: "encrypt-combine", isCheck: true, err: errCombine, checkedCount: count},
					}},
					&stubRule{kind: rule.KindSharding, name: "sharding", checkers: []rule.Checker{
						&stubChecker{name: "dml", isCheck: true, err: errDML, checkedCount: count},
						&stubChecker{name: "ok", isCheck: true, checkedCount: count},
					}},
				}
			},
			wantErrs:  []error{errDML, errCombine},
			wantCount: 3,
		},
		{
			name: "hint跳过允许跳过的检查",
			rules: func(count *int) []rule.Rule {
				return []rule.Rule{&stubRule{kind: rule.KindSharding, name: "sharding", checkers: []rule.Checker{
					&stubChecker{name: "dml", isCheck: true, err: errDML, hintDisable: true, checkedCount: count},
				}}}
			},
			hint: statement.Hint{DisableAuditNames: []string{" DML "}},
		},
		{
			name: "hint不能跳过不允许跳过的检查",
			rules: func(count *int) []rule.Rule {
				return []rule.Rule{&stubRule{kind: rule.KindSharding, name: "sharding", checkers: []rule.Checker{
					&stubChecker{name: "dml", isCheck: true, err: errDML, checkedCount: count},
				}}}
			},
			hint:      statement.Hint{DisableAuditNames: []string{"dml"}},
			wantErrs:  []error{errDML},
			wantCount: 1,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			count := 0
			err := NewEngine().Check(Request{
				Statement: &statement.Statement{Kind: statement.KindDelete, Hint: tc.hint},
				Rules:     tc.rules(&count),
			})
			assert.Equal(t, tc.wantCount, count)
			if len(tc.wantErrs) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errs.ErrUnsupportedOperation)
			var merr *multierror.Error
			require.True(t, errors.As(err, &merr))
			require.Len(t, merr.Errors, len(tc.wantErrs))
			for i, want := range tc.wantErrs {
				assert.ErrorIs(t, merr.Errors[i], want)
			}
		})
	}
}
