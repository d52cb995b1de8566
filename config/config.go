package config

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"

	logdriver "github.com/meoying/dbkernel/internal/driver/log"
	"github.com/meoying/dbkernel/internal/encrypt"
	"github.com/meoying/dbkernel/internal/errs"
	"github.com/meoying/dbkernel/internal/executor"
	"github.com/meoying/dbkernel/internal/mask"
	"github.com/meoying/dbkernel/internal/rule"
	"github.com/meoying/dbkernel/internal/rwsplit"
	"github.com/meoying/dbkernel/internal/shadow"
	"github.com/meoying/dbkernel/internal/sharding"
)

const (
	PropSQLShow            = "sql-show"
	PropCheckTableMetadata = "check-table-metadata-enabled"
)

const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

type Config struct {
	DataSources       map[string]DataSource `yaml:"dataSources" toml:"dataSources"`
	DefaultDataSource string                `yaml:"defaultDataSource,omitempty" toml:"defaultDataSource"`
	Rules             Rules                 `yaml:"rules" toml:"rules"`
	Props             map[string]any        `yaml:"props,omitempty" toml:"props"`
}

// DataSource 物理数据源
type DataSource struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
	// Prepare 是否缓存预编译语句
	Prepare bool `yaml:"prepare,omitempty" toml:"prepare"`
}

type Rules struct {
	Sharding           *sharding.RuleConfiguration `yaml:"sharding,omitempty" toml:"sharding"`
	ReadwriteSplitting *rwsplit.RuleConfiguration  `yaml:"readwriteSplitting,omitempty" toml:"readwriteSplitting"`
	Shadow             *shadow.RuleConfiguration   `yaml:"shadow,omitempty" toml:"shadow"`
	Encrypt            *encrypt.RuleConfiguration  `yaml:"encrypt,omitempty" toml:"encrypt"`
	Mask               *mask.RuleConfiguration     `yaml:"mask,omitempty" toml:"mask"`
}

// ParseFile 按照扩展名选择格式，.toml 是 TOML，其余都按照 YAML 解析
func ParseFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(filePath), ".toml") {
		format = FormatTOML
	}
	cfg, err := parseConfig(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "解析配置文件 %s 失败", filePath)
	}
	return cfg, nil
}

// ParseContent 解析 YAML 格式的配置内容
func ParseContent(content string) (*Config, error) {
	return parseConfig([]byte(content), FormatYAML)
}

// ParseTOML 解析 TOML 格式的配置内容
func ParseTOML(content string) (*Config, error) {
	return parseConfig([]byte(content), FormatTOML)
}

func parseConfig(data []byte, format string) (*Config, error) {
	var cfg Config
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, errs.NewInvalidConfigError("%s", err.Error())
	}
	if err = cfg.validate(); err != nil {
		return nil, err
	}
	slog.Debug("解析配置", slog.String("format", format), slog.Any("dataSources", cfg.DataSourceNames()))
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.DataSources) == 0 {
		return errs.NewInvalidConfigError("没有配置数据源")
	}
	for name, ds := range c.DataSources {
		if ds.Driver == "" || ds.DSN == "" {
			return errs.NewInvalidConfigError("数据源 %s 缺少 driver 或者 dsn", name)
		}
	}
	if _, err := c.props(); err != nil {
		return err
	}
	return nil
}

// DataSourceNames 排序之后的物理数据源名字
func (c *Config) DataSourceNames() []string {
	names := maps.Keys(c.DataSources)
	slices.Sort(names)
	return names
}

func (c *Config) props() (rule.Props, error) {
	var res rule.Props
	for key, val := range c.Props {
		b, err := cast.ToBoolE(val)
		switch key {
		case PropSQLShow:
			res.SQLShow = b
		case PropCheckTableMetadata:
			res.CheckTableMetadata = b
		default:
			continue
		}
		if err != nil {
			return rule.Props{}, errs.NewInvalidConfigError("属性 %s 的值 %v 不是布尔值", key, val)
		}
	}
	return res, nil
}

// BuildRules 按照配置创建规则。
// 分片规则看到的是聚合之后的逻辑数据源，所以最后创建
func (c *Config) BuildRules() ([]rule.Rule, error) {
	var res []rule.Rule
	if c.Rules.ReadwriteSplitting != nil {
		r, err := rwsplit.NewRule("readwrite-splitting", *c.Rules.ReadwriteSplitting)
		if err != nil {
			return nil, errors.Wrap(err, "创建读写分离规则失败")
		}
		res = append(res, r)
	}
	if c.Rules.Shadow != nil {
		r, err := shadow.NewRule("shadow", *c.Rules.Shadow)
		if err != nil {
			return nil, errors.Wrap(err, "创建影子库规则失败")
		}
		res = append(res, r)
	}
	if c.Rules.Encrypt != nil {
		r, err := encrypt.NewRule("encrypt", *c.Rules.Encrypt)
		if err != nil {
			return nil, errors.Wrap(err, "创建加密规则失败")
		}
		res = append(res, r)
	}
	if c.Rules.Mask != nil {
		r, err := mask.NewRule("mask", *c.Rules.Mask)
		if err != nil {
			return nil, errors.Wrap(err, "创建脱敏规则失败")
		}
		res = append(res, r)
	}
	if c.Rules.Sharding != nil {
		logic := rule.NewSnapshot(res, c.DataSourceNames(), "", rule.Props{}).LogicDataSources
		r, err := sharding.NewRule("sharding", *c.Rules.Sharding, logic)
		if err != nil {
			return nil, errors.Wrap(err, "创建分片规则失败")
		}
		res = append(res, r)
	}
	return res, nil
}

// Snapshot 第一代规则快照
func (c *Config) Snapshot() (*rule.Snapshot, error) {
	rules, err := c.BuildRules()
	if err != nil {
		return nil, err
	}
	props, err := c.props()
	if err != nil {
		return nil, err
	}
	return rule.NewSnapshot(rules, c.DataSourceNames(), c.DefaultDataSource, props), nil
}

// OpenDataSources 打开全部物理数据源，驱动需要调用方提前注册。
// l 不为 nil 的时候用它输出发往每个数据源的 SQL。
// 任何一个失败都会关闭已经打开的
func (c *Config) OpenDataSources(l *slog.Logger) (map[string]executor.DataSource, error) {
	res := make(map[string]executor.DataSource, len(c.DataSources))
	for _, name := range c.DataSourceNames() {
		ds := c.DataSources[name]
		db, err := openDB(name, ds, l)
		if err != nil {
			err = errors.Wrapf(err, "打开数据源 %s 失败", name)
			for _, opened := range res {
				err = multierr.Append(err, opened.Close())
			}
			return nil, err
		}
		res[name] = executor.OpenDB(db, executor.WithPrepare(ds.Prepare))
	}
	return res, nil
}

func openDB(name string, ds DataSource, l *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open(ds.Driver, ds.DSN)
	if err != nil || l == nil {
		return db, err
	}
	d := db.Driver()
	if err = db.Close(); err != nil {
		return nil, err
	}
	connector, err := logdriver.NewConnector(d, ds.DSN, logdriver.WithLogger(l), logdriver.WithDataSource(name))
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}
