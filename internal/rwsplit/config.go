package rwsplit

import (
	"strings"

	"github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

// TransactionalReadQueryStrategy 事务中的读请求怎么路由
type TransactionalReadQueryStrategy string

const (
	// TransactionalPrimary 事务中的读请求全部走写库，默认值
	TransactionalPrimary TransactionalReadQueryStrategy = "PRIMARY"
	// TransactionalDynamic 事务中的读请求也按照负载均衡算法走读库
	TransactionalDynamic TransactionalReadQueryStrategy = "DYNAMIC"
)

func (s *TransactionalReadQueryStrategy) UnmarshalText(text []byte) error {
	switch v := TransactionalReadQueryStrategy(strings.ToUpper(strings.TrimSpace(string(text)))); v {
	case "", TransactionalPrimary, TransactionalDynamic:
		*s = v
		return nil
	}
	return errs.NewInvalidConfigError("未知的事务读策略 %s", text)
}

type RuleConfiguration struct {
	DataSourceGroups map[string]DataSourceGroupConfiguration `yaml:"dataSourceGroups" toml:"dataSourceGroups"`
	LoadBalancers    map[string]algorithm.Configuration      `yaml:"loadBalancers,omitempty" toml:"loadBalancers"`
}

type DataSourceGroupConfiguration struct {
	WriteDataSourceName            string                         `yaml:"writeDataSourceName" toml:"writeDataSourceName"`
	ReadDataSourceNames            []string                       `yaml:"readDataSourceNames" toml:"readDataSourceNames"`
	TransactionalReadQueryStrategy TransactionalReadQueryStrategy `yaml:"transactionalReadQueryStrategy,omitempty" toml:"transactionalReadQueryStrategy"`
	// LoadBalancerName 为空的时候使用轮询
	LoadBalancerName string `yaml:"loadBalancerName,omitempty" toml:"loadBalancerName"`
}
