package algorithm

import (
	"strings"

	"github.com/magiconair/properties"
	"github.com/spf13/cast"

	"github.com/meoying/dbkernel/internal/errs"
)

// Configuration 算法配置，各个规则共用
type Configuration struct {
	Type  string         `yaml:"type" json:"type" toml:"type"`
	Props map[string]any `yaml:"props,omitempty" json:"props,omitempty" toml:"props"`
}

// Props 算法属性。YAML 里面的值类型五花八门，统一转成字符串再按需解析
type Props struct {
	props *properties.Properties
}

func NewProps(values map[string]any) (*Props, error) {
	kv := make(map[string]string, len(values))
	for k, v := range values {
		// 列表类的配置统一用逗号拼接
		if vs, ok := v.([]any); ok {
			items := make([]string, 0, len(vs))
			for _, item := range vs {
				s, err := cast.ToStringE(item)
				if err != nil {
					return nil, errs.NewInvalidConfigError("属性 %s: %s", k, err)
				}
				items = append(items, s)
			}
			kv[k] = strings.Join(items, ",")
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, errs.NewInvalidConfigError("属性 %s: %s", k, err)
		}
		kv[k] = s
	}
	// 表达式里面的 ${...} 由算法自己解析，这里不能展开
	props := properties.NewProperties()
	props.DisableExpansion = true
	for k, v := range kv {
		if _, _, err := props.Set(k, v); err != nil {
			return nil, errs.NewInvalidConfigError("属性 %s: %s", k, err)
		}
	}
	return &Props{props: props}, nil
}

// MustNewProps 测试和内置默认值使用
func MustNewProps(values map[string]any) *Props {
	p, err := NewProps(values)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Props) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p.props.Get(key)
	return ok
}

func (p *Props) String(key, def string) string {
	if p == nil {
		return def
	}
	return p.props.GetString(key, def)
}

// RequiredString 必须存在并且不能是空串
func (p *Props) RequiredString(key string) (string, error) {
	if !p.Has(key) {
		return "", errs.NewInvalidConfigError("缺少属性 %s", key)
	}
	v := strings.TrimSpace(p.props.GetString(key, ""))
	if v == "" {
		return "", errs.NewInvalidConfigError("属性 %s 不能为空", key)
	}
	return v, nil
}

func (p *Props) Int(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	v, err := cast.ToIntE(strings.TrimSpace(p.props.GetString(key, "")))
	if err != nil {
		return 0, errs.NewInvalidConfigError("属性 %s 不是整数: %s", key, err)
	}
	return v, nil
}

func (p *Props) RequiredInt(key string) (int, error) {
	if !p.Has(key) {
		return 0, errs.NewInvalidConfigError("缺少属性 %s", key)
	}
	return p.Int(key, 0)
}

func (p *Props) Int64(key string, def int64) (int64, error) {
	if !p.Has(key) {
		return def, nil
	}
	v, err := cast.ToInt64E(strings.TrimSpace(p.props.GetString(key, "")))
	if err != nil {
		return 0, errs.NewInvalidConfigError("属性 %s 不是整数: %s", key, err)
	}
	return v, nil
}

func (p *Props) Bool(key string, def bool) bool {
	if p == nil {
		return def
	}
	return p.props.GetBool(key, def)
}

// Strings 逗号分隔的列表
func (p *Props) Strings(key string) []string {
	if !p.Has(key) {
		return nil
	}
	var res []string
	for _, s := range strings.Split(p.props.GetString(key, ""), ",") {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}
	return res
}

// Keys 所有的属性名
func (p *Props) Keys() []string {
	if p == nil {
		return nil
	}
	return p.props.Keys()
}
