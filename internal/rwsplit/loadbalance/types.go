package loadbalance

import (
	base "github.com/meoying/dbkernel/internal/algorithm"
)

const (
	TypeRoundRobin = "ROUND_ROBIN"
	TypeRandom     = "RANDOM"
	TypeWeight     = "WEIGHT"
)

//go:generate mockgen -source=./types.go -destination=mocks/algorithm.mock.go -package=lbmocks Algorithm
type Algorithm interface {
	Type() string
	// Select 从读库中选出一个。readNames 已经去掉了被禁用的成员，并且不为空
	Select(groupName, writeName string, readNames []string) string
}

// Algorithms 负载均衡算法的注册中心
var Algorithms = func() *base.Registry[Algorithm] {
	r := base.NewRegistry[Algorithm]("load-balance")
	r.Register(TypeRoundRobin, func(*base.Props) (Algorithm, error) {
		return NewRoundRobin(), nil
	})
	r.Register(TypeRandom, func(*base.Props) (Algorithm, error) {
		return NewRandom(), nil
	})
	r.Register(TypeWeight, func(props *base.Props) (Algorithm, error) {
		return NewWeight(props)
	})
	return r
}()
