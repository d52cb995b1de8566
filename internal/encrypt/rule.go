package encrypt

import (
	"strings"

	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/statement"
)

var (
	_ rule.Rewriter        = &Rule{}
	_ rule.ResultDecorator = &Rule{}
	_ rule.AuditChecker    = &Rule{}
)

type column struct {
	logic     string
	cipher    string
	encryptor Decryptor
	// assisted 为空表示没有辅助查询列
	assisted          string
	assistedEncryptor Algorithm
	dataType          string
}

// queryColumn 查询条件使用的列，有辅助查询列的时候优先使用
func (c *column) queryColumn() (string, Algorithm) {
	if c.assisted != "" {
		return c.assisted, c.assistedEncryptor
	}
	return c.cipher, c.encryptor
}

type table struct {
	name    string
	columns map[string]*column
}

func (t *table) column(name string) (*column, bool) {
	c, ok := t.columns[strings.ToLower(name)]
	return c, ok
}

// cipherColumn 根据密文列名找到逻辑列
func (t *table) cipherColumn(name string) (*column, bool) {
	for _, c := range t.columns {
		if strings.EqualFold(c.cipher, name) {
			return c, true
		}
	}
	return nil, false
}

// Rule 加密规则。写入的时候把明文换成密文，读取的时候解密
type Rule struct {
	name     string
	tables   map[string]*table
	checkers []rule.Checker
}

func NewRule(name string, cfg RuleConfiguration) (*Rule, error) {
	algs, err := Algorithms.NewAll(cfg.Encryptors)
	if err != nil {
		return nil, err
	}
	r := &Rule{name: name, tables: make(map[string]*table, len(cfg.Tables))}
	for tn, tc := range cfg.Tables {
		t := &table{name: tn, columns: make(map[string]*column, len(tc.Columns))}
		for cn, cc := range tc.Columns {
			c, err := newColumn(tn, cn, cc, algs)
			if err != nil {
				return nil, err
			}
			t.columns[strings.ToLower(cn)] = c
		}
		r.tables[strings.ToLower(tn)] = t
	}
	r.checkers = []rule.Checker{&combineChecker{rule: r}, &predicateChecker{rule: r}}
	return r, nil
}

func newColumn(tableName, name string, cfg ColumnConfiguration, algs map[string]Algorithm) (*column, error) {
	if cfg.Cipher.Name == "" {
		return nil, errs.NewInvalidConfigError("加密列 %s.%s 没有配置密文列", tableName, name)
	}
	alg, ok := algs[cfg.Cipher.EncryptorName]
	if !ok {
		return nil, errs.NewInvalidConfigError("加密列 %s.%s 引用的加密算法 %s 不存在", tableName, name, cfg.Cipher.EncryptorName)
	}
	dec, ok := alg.(Decryptor)
	if !ok {
		return nil, errs.NewInvalidConfigError("加密列 %s.%s 的密文列必须使用可以解密的算法，%s 不支持解密", tableName, name, alg.Type())
	}
	c := &column{logic: name, cipher: cfg.Cipher.Name, encryptor: dec, dataType: cfg.DataType}
	if cfg.AssistedQuery != nil {
		aq, ok := algs[cfg.AssistedQuery.EncryptorName]
		if !ok || cfg.AssistedQuery.Name == "" {
			return nil, errs.NewInvalidConfigError("加密列 %s.%s 的辅助查询列配置非法", tableName, name)
		}
		c.assisted = cfg.AssistedQuery.Name
		c.assistedEncryptor = aq
	}
	return c, nil
}

func (r *Rule) Kind() rule.Kind {
	return rule.KindEncrypt
}

func (r *Rule) Name() string {
	return r.name
}

func (r *Rule) table(name string) (*table, bool) {
	t, ok := r.tables[strings.ToLower(name)]
	return t, ok
}

// column table 为空的时候找不到
func (r *Rule) column(tableName, columnName string) (*column, bool) {
	t, ok := r.table(tableName)
	if !ok {
		return nil, false
	}
	return t.column(columnName)
}

// touches 语句是否引用了加密表
func (r *Rule) touches(stmt *statement.Statement) bool {
	for _, name := range stmt.TableNames() {
		if _, ok := r.table(name); ok {
			return true
		}
	}
	return false
}

func (r *Rule) Checkers() []rule.Checker {
	return r.checkers
}

// tableOf 列所属的逻辑表：binder 给出的表名，或者限定名对应的表，或者唯一的一张表
func tableOf(stmt *statement.Statement, tableName, owner string) string {
	if tableName != "" {
		return tableName
	}
	if owner != "" {
		if t, ok := stmt.Table(owner); ok {
			return t.Name
		}
		return owner
	}
	if len(stmt.Tables) == 1 {
		return stmt.Tables[0].Name
	}
	return ""
}
