package algorithm

import (
	"sort"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

const (
	TypeVolumeRange   = "VOLUME_RANGE"
	TypeBoundaryRange = "BOUNDARY_RANGE"
)

// partitionRange 按照一组升序的边界分区。
// 第 0 个分区是小于第一个边界的值，第 i 个分区是 [boundaries[i-1], boundaries[i])
type partitionRange struct {
	typ        string
	boundaries []int64
}

func NewVolumeRange(props *base.Props) (Algorithm, error) {
	lower, err := requiredInt64(props, "range-lower")
	if err != nil {
		return nil, err
	}
	upper, err := requiredInt64(props, "range-upper")
	if err != nil {
		return nil, err
	}
	volume, err := requiredInt64(props, "sharding-volume")
	if err != nil {
		return nil, err
	}
	if upper <= lower || volume <= 0 {
		return nil, errs.NewInvalidConfigError("VOLUME_RANGE 需要 range-upper > range-lower 并且 sharding-volume > 0")
	}
	var boundaries []int64
	for b := lower; b < upper; b += volume {
		boundaries = append(boundaries, b)
	}
	boundaries = append(boundaries, upper)
	return &partitionRange{typ: TypeVolumeRange, boundaries: boundaries}, nil
}

func NewBoundaryRange(props *base.Props) (Algorithm, error) {
	ranges := props.Strings("sharding-ranges")
	if len(ranges) == 0 {
		return nil, errs.NewInvalidConfigError("BOUNDARY_RANGE 缺少属性 sharding-ranges")
	}
	boundaries := make([]int64, 0, len(ranges))
	for _, r := range ranges {
		b, err := toInt64(r)
		if err != nil {
			return nil, errs.NewInvalidConfigError("BOUNDARY_RANGE 的边界 %s 不是整数", r)
		}
		boundaries = append(boundaries, b)
	}
	if !sort.SliceIsSorted(boundaries, func(i, j int) bool { return boundaries[i] < boundaries[j] }) {
		return nil, errs.NewInvalidConfigError("BOUNDARY_RANGE 的边界必须升序")
	}
	return &partitionRange{typ: TypeBoundaryRange, boundaries: boundaries}, nil
}

func requiredInt64(props *base.Props, key string) (int64, error) {
	if _, err := props.RequiredString(key); err != nil {
		return 0, err
	}
	return props.Int64(key, 0)
}

func (p *partitionRange) Type() string {
	return p.typ
}

func (p *partitionRange) partition(v int64) int64 {
	return int64(sort.Search(len(p.boundaries), func(i int) bool {
		return p.boundaries[i] > v
	}))
}

func (p *partitionRange) Match(targets []string, value PreciseValue) (string, bool, error) {
	v, err := toInt64(value.Value)
	if err != nil {
		return "", false, errs.NewInvalidConfigError("%s 分片列 %s 的值 %v 不是整数", p.typ, value.Column, value.Value)
	}
	t, ok := findBySuffix(targets, p.partition(v))
	return t, ok, nil
}

func (p *partitionRange) MatchRange(targets []string, value RangeValue) ([]string, error) {
	first, last := int64(0), int64(len(p.boundaries))
	if value.Range.Lower != nil {
		lo, err := toInt64(value.Range.Lower)
		if err != nil {
			return allTargets(targets), nil
		}
		first = p.partition(lo)
	}
	if value.Range.Upper != nil {
		hi, err := toInt64(value.Range.Upper)
		if err != nil {
			return allTargets(targets), nil
		}
		last = p.partition(hi)
	}
	if first > last {
		return []string{}, nil
	}
	res := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		if t, ok := findBySuffix(targets, i); ok {
			res = append(res, t)
		}
	}
	return res, nil
}
