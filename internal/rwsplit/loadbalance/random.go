package loadbalance

import (
	"math/rand/v2"
)

type Random struct{}

func NewRandom() Random {
	return Random{}
}

func (Random) Type() string {
	return TypeRandom
}

func (Random) Select(_, _ string, readNames []string) string {
	return readNames[rand.IntN(len(readNames))]
}
