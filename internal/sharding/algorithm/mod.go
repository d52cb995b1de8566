package algorithm

import (
	"hash/fnv"

	"github.com/go-faster/city"
	"github.com/spaolacci/murmur3"
	"github.com/spf13/cast"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

const (
	TypeMod     = "MOD"
	TypeHashMod = "HASH_MOD"
)

// Mod 分片值对分片数取模，按照目标名字末尾的数字匹配
type Mod struct {
	count int64
}

func NewMod(props *base.Props) (Algorithm, error) {
	count, err := props.RequiredInt("sharding-count")
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errs.NewInvalidConfigError("MOD 的 sharding-count 必须大于 0")
	}
	return &Mod{count: int64(count)}, nil
}

func (*Mod) Type() string {
	return TypeMod
}

func (m *Mod) mod(v int64) int64 {
	return (v%m.count + m.count) % m.count
}

func (m *Mod) Match(targets []string, value PreciseValue) (string, bool, error) {
	v, err := toInt64(value.Value)
	if err != nil {
		return "", false, errs.NewInvalidConfigError("MOD 分片列 %s 的值 %v 不是整数", value.Column, value.Value)
	}
	t, ok := findBySuffix(targets, m.mod(v))
	return t, ok, nil
}

// MatchRange 区间比分片数小的时候逐个计算，否则返回所有目标
func (m *Mod) MatchRange(targets []string, value RangeValue) ([]string, error) {
	if value.Range.Lower == nil || value.Range.Upper == nil {
		return allTargets(targets), nil
	}
	lo, err := toInt64(value.Range.Lower)
	if err != nil {
		return allTargets(targets), nil
	}
	hi, err := toInt64(value.Range.Upper)
	if err != nil {
		return allTargets(targets), nil
	}
	// 下界大于上界的区间是空的
	if lo > hi {
		return []string{}, nil
	}
	// hi-lo 可能溢出 int64，按无符号数比较
	span := uint64(hi) - uint64(lo)
	if span >= uint64(m.count-1) {
		return allTargets(targets), nil
	}
	res := make([]string, 0, span+1)
	seen := make(map[string]struct{}, span+1)
	for i := uint64(0); i <= span; i++ {
		t, ok := findBySuffix(targets, m.mod(lo+int64(i)))
		if _, dup := seen[t]; !ok || dup {
			continue
		}
		seen[t] = struct{}{}
		res = append(res, t)
	}
	return res, nil
}

// HashMod 对分片值的哈希取模，用于字符串类型的分片列
type HashMod struct {
	count int64
	hash  func(data []byte) uint64
}

func NewHashMod(props *base.Props) (Algorithm, error) {
	count, err := props.RequiredInt("sharding-count")
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errs.NewInvalidConfigError("HASH_MOD 的 sharding-count 必须大于 0")
	}
	h := &HashMod{count: int64(count)}
	switch fn := props.String("hash-function", "murmur3"); fn {
	case "murmur3":
		h.hash = func(data []byte) uint64 {
			return uint64(murmur3.Sum32(data))
		}
	case "city":
		h.hash = city.Hash64
	case "fnv":
		h.hash = func(data []byte) uint64 {
			f := fnv.New64a()
			_, _ = f.Write(data)
			return f.Sum64()
		}
	default:
		return nil, errs.NewInvalidConfigError("HASH_MOD 不支持哈希函数 %s", fn)
	}
	return h, nil
}

func (*HashMod) Type() string {
	return TypeHashMod
}

func (h *HashMod) Match(targets []string, value PreciseValue) (string, bool, error) {
	var data []byte
	if b, ok := value.Value.([]byte); ok {
		data = b
	} else {
		s, err := cast.ToStringE(value.Value)
		if err != nil {
			return "", false, errs.NewInvalidConfigError("HASH_MOD 分片列 %s 的值 %v 无法哈希", value.Column, value.Value)
		}
		data = []byte(s)
	}
	t, ok := findBySuffix(targets, int64(h.hash(data)%uint64(h.count)))
	return t, ok, nil
}

// MatchRange 哈希之后没有顺序，只能返回所有目标
func (*HashMod) MatchRange(targets []string, _ RangeValue) ([]string, error) {
	return allTargets(targets), nil
}
