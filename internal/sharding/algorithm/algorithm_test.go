package algorithm

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

func newStandard(t *testing.T, typ string, props map[string]any) Standard {
	alg, err := Registry.New(base.Configuration{Type: typ, Props: props})
	require.NoError(t, err)
	s, ok := alg.(Standard)
	require.True(t, ok)
	return s
}

func TestStandard_Match(t *testing.T) {
	tables := []string{"t_order_0", "t_order_1"}
	testcases := []struct {
		name    string
		typ     string
		props   map[string]any
		targets []string
		value   any
		wantRes string
		wantOk  bool
		wantErr error
	}{
		{
			name:    "MOD",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 2},
			targets: tables,
			value:   3,
			wantRes: "t_order_1",
			wantOk:  true,
		},
		{
			name:    "MOD负数",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 2},
			targets: tables,
			value:   int64(-4),
			wantRes: "t_order_0",
			wantOk:  true,
		},
		{
			name:    "MOD字符串",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": "2"},
			targets: tables,
			value:   []byte("11"),
			wantRes: "t_order_1",
			wantOk:  true,
		},
		{
			name:    "MOD不区分后缀前缀",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 12},
			targets: []string{"t_1", "t_11"},
			value:   11,
			wantRes: "t_11",
			wantOk:  true,
		},
		{
			name:    "MOD没有匹配",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 3},
			targets: tables,
			value:   2,
		},
		{
			name:    "MOD值不是整数",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 2},
			targets: tables,
			value:   "abc",
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "INLINE",
			typ:     TypeInline,
			props:   map[string]any{"algorithm-expression": "t_order_${order_id % 2}"},
			targets: tables,
			value:   3,
			wantRes: "t_order_1",
			wantOk:  true,
		},
		{
			name:    "VOLUME_RANGE",
			typ:     TypeVolumeRange,
			props:   map[string]any{"range-lower": 10, "range-upper": 40, "sharding-volume": 10},
			targets: []string{"t_0", "t_1", "t_2", "t_3", "t_4"},
			value:   25,
			wantRes: "t_2",
			wantOk:  true,
		},
		{
			name:    "VOLUME_RANGE小于下界",
			typ:     TypeVolumeRange,
			props:   map[string]any{"range-lower": 10, "range-upper": 40, "sharding-volume": 10},
			targets: []string{"t_0", "t_1", "t_2", "t_3", "t_4"},
			value:   3,
			wantRes: "t_0",
			wantOk:  true,
		},
		{
			name:    "BOUNDARY_RANGE",
			typ:     TypeBoundaryRange,
			props:   map[string]any{"sharding-ranges": []any{1, 5, 10}},
			targets: []string{"t_0", "t_1", "t_2", "t_3"},
			value:   10,
			wantRes: "t_3",
			wantOk:  true,
		},
		{
			name: "INTERVAL",
			typ:  TypeInterval,
			props: map[string]any{
				"datetime-pattern": "yyyy-MM-dd HH:mm:ss", "datetime-lower": "2024-01-01 00:00:00",
				"datetime-upper": "2024-12-31 23:59:59", "sharding-suffix-pattern": "yyyyMM",
				"datetime-interval-unit": "MONTHS",
			},
			targets: []string{"t_order_202401", "t_order_202402", "t_order_202403"},
			value:   "2024-02-15 10:00:00",
			wantRes: "t_order_202402",
			wantOk:  true,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			alg := newStandard(t, tc.typ, tc.props)
			res, ok, err := alg.Match(tc.targets, PreciseValue{LogicTable: "t_order", Column: "order_id", Value: tc.value})
			assert.ErrorIs(t, err, tc.wantErr)
			if err != nil {
				return
			}
			assert.Equal(t, tc.wantOk, ok)
			assert.Equal(t, tc.wantRes, res)
		})
	}
}

func TestStandard_MatchRange(t *testing.T) {
	testcases := []struct {
		name    string
		typ     string
		props   map[string]any
		targets []string
		rng     Range
		wantRes []string
		wantErr error
	}{
		{
			name:    "MOD小区间",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 4},
			targets: []string{"t_0", "t_1", "t_2", "t_3"},
			rng:     Range{Lower: 5, Upper: 6},
			wantRes: []string{"t_1", "t_2"},
		},
		{
			name:    "MOD大区间",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 2},
			targets: []string{"t_0", "t_1"},
			rng:     Range{Lower: 1, Upper: 100},
			wantRes: []string{"t_0", "t_1"},
		},
		{
			name:    "MOD下界大于上界",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 4},
			targets: []string{"t_0", "t_1", "t_2", "t_3"},
			rng:     Range{Lower: 5, Upper: 3},
			wantRes: []string{},
		},
		{
			name:    "MOD区间跨越整个int64",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 4},
			targets: []string{"t_0", "t_1", "t_2", "t_3"},
			rng:     Range{Lower: int64(math.MinInt64), Upper: int64(math.MaxInt64)},
			wantRes: []string{"t_0", "t_1", "t_2", "t_3"},
		},
		{
			name:    "MOD区间刚好等于分片数",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 4},
			targets: []string{"t_0", "t_1", "t_2", "t_3"},
			rng:     Range{Lower: int64(math.MaxInt64 - 3), Upper: int64(math.MaxInt64)},
			wantRes: []string{"t_0", "t_1", "t_2", "t_3"},
		},
		{
			name:    "MOD区间在int64的上边界",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 4},
			targets: []string{"t_0", "t_1", "t_2", "t_3"},
			rng:     Range{Lower: int64(math.MaxInt64 - 1), Upper: int64(math.MaxInt64)},
			wantRes: []string{"t_2", "t_3"},
		},
		{
			name:    "MOD没有上界",
			typ:     TypeMod,
			props:   map[string]any{"sharding-count": 2},
			targets: []string{"t_0", "t_1"},
			rng:     Range{Lower: 1},
			wantRes: []string{"t_0", "t_1"},
		},
		{
			name:    "HASH_MOD",
			typ:     TypeHashMod,
			props:   map[string]any{"sharding-count": 2},
			targets: []string{"t_0", "t_1"},
			rng:     Range{Lower: 1, Upper: 1},
			wantRes: []string{"t_0", "t_1"},
		},
		{
			name:    "INLINE不允许范围查询",
			typ:     TypeInline,
			props:   map[string]any{"algorithm-expression": "t_${id % 2}"},
			targets: []string{"t_0", "t_1"},
			rng:     Range{Lower: 1, Upper: 2},
			wantErr: errs.ErrUnsupportedOperation,
		},
		{
			name: "INLINE允许范围查询",
			typ:  TypeInline,
			props: map[string]any{
				"algorithm-expression":                   "t_${id % 2}",
				"allow-range-query-with-inline-sharding": true,
			},
			targets: []string{"t_0", "t_1"},
			rng:     Range{Lower: 1, Upper: 2},
			wantRes: []string{"t_0", "t_1"},
		},
		{
			name:    "BOUNDARY_RANGE",
			typ:     TypeBoundaryRange,
			props:   map[string]any{"sharding-ranges": "1,5,10"},
			targets: []string{"t_0", "t_1", "t_2", "t_3"},
			rng:     Range{Lower: 2, Upper: 7},
			wantRes: []string{"t_1", "t_2"},
		},
		{
			name:    "BOUNDARY_RANGE下界大于上界",
			typ:     TypeBoundaryRange,
			props:   map[string]any{"sharding-ranges": "10,20,30"},
			targets: []string{"t_0", "t_1", "t_2", "t_3"},
			rng:     Range{Lower: 25, Upper: 5},
			wantRes: []string{},
		},
		{
			name:    "BOUNDARY_RANGE区间跨越整个int64",
			typ:     TypeBoundaryRange,
			props:   map[string]any{"sharding-ranges": "10,20,30"},
			targets: []string{"t_0", "t_1", "t_2", "t_3"},
			rng:     Range{Lower: int64(math.MinInt64), Upper: int64(math.MaxInt64)},
			wantRes: []string{"t_0", "t_1", "t_2", "t_3"},
		},
		{
			name:    "VOLUME_RANGE没有下界",
			typ:     TypeVolumeRange,
			props:   map[string]any{"range-lower": 10, "range-upper": 40, "sharding-volume": 10},
			targets: []string{"t_0", "t_1", "t_2", "t_3", "t_4"},
			rng:     Range{Upper: 15},
			wantRes: []string{"t_0", "t_1"},
		},
		{
			name: "INTERVAL",
			typ:  TypeInterval,
			props: map[string]any{
				"datetime-pattern": "yyyy-MM-dd", "datetime-lower": "2024-01-01",
				"datetime-upper": "2024-12-31", "sharding-suffix-pattern": "yyyyMM",
				"datetime-interval-unit": "MONTHS",
			},
			targets: []string{"t_202401", "t_202402", "t_202403", "t_202404"},
			rng:     Range{Lower: "2024-02-10", Upper: "2024-03-05"},
			wantRes: []string{"t_202402", "t_202403"},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			alg := newStandard(t, tc.typ, tc.props)
			res, err := alg.MatchRange(tc.targets, RangeValue{LogicTable: "t", Column: "id", Range: tc.rng})
			assert.ErrorIs(t, err, tc.wantErr)
			if err != nil {
				return
			}
			assert.Equal(t, tc.wantRes, res)
		})
	}
}

func TestComplexInline(t *testing.T) {
	alg, err := Registry.New(base.Configuration{Type: TypeComplexInline, Props: map[string]any{
		"algorithm-expression": "t_${user_id % 2}_${order_id % 2}",
		"sharding-columns":     "user_id,order_id",
	}})
	require.NoError(t, err)
	c := alg.(Complex)
	targets := []string{"t_0_0", "t_0_1", "t_1_0", "t_1_1"}
	res, err := c.MatchComplex(targets, ComplexValue{Values: map[string][]any{
		"user_id":  {1},
		"order_id": {2, 3},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t_1_0", "t_1_1"}, res)

	res, err = c.MatchComplex(targets, ComplexValue{Values: map[string][]any{"user_id": {1}}})
	require.NoError(t, err)
	assert.Equal(t, targets, res)

	_, err = c.MatchComplex(targets, ComplexValue{
		Values: map[string][]any{"user_id": {1}},
		Ranges: map[string]Range{"order_id": {Lower: 1}},
	})
	assert.ErrorIs(t, err, errs.ErrUnsupportedOperation)
}

func TestHintInline(t *testing.T) {
	alg, err := Registry.New(base.Configuration{Type: TypeHintInline, Props: map[string]any{
		"algorithm-expression": "ds_${value % 2}",
	}})
	require.NoError(t, err)
	h := alg.(Hint)
	res, err := h.MatchHint([]string{"ds_0", "ds_1"}, HintValue{Values: []any{3, 5, 4}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ds_0", "ds_1"}, res)
}

func TestRegistry_Invalid(t *testing.T) {
	testcases := []struct {
		name    string
		cfg     base.Configuration
		wantErr error
	}{
		{
			name:    "未知算法",
			cfg:     base.Configuration{Type: "UNKNOWN"},
			wantErr: errs.ErrAlgorithmNotFound,
		},
		{
			name:    "MOD缺少分片数",
			cfg:     base.Configuration{Type: TypeMod},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "HASH_MOD未知哈希函数",
			cfg:     base.Configuration{Type: TypeHashMod, Props: map[string]any{"sharding-count": 2, "hash-function": "md4"}},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "BOUNDARY_RANGE边界无序",
			cfg:     base.Configuration{Type: TypeBoundaryRange, Props: map[string]any{"sharding-ranges": "5,1"}},
			wantErr: errs.ErrInvalidConfig,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Registry.New(tc.cfg)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSnowflake(t *testing.T) {
	gen, err := KeyGenerators.New(base.Configuration{Type: TypeSnowflake, Props: map[string]any{"worker-id": 3}})
	require.NoError(t, err)
	s := gen.(*Snowflake)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.sleep = func(time.Duration) {}

	first, err := s.Generate()
	require.NoError(t, err)
	second, err := s.Generate()
	require.NoError(t, err)
	id1, id2 := first.(int64), second.(int64)
	assert.Equal(t, id1+1, id2)
	assert.Equal(t, int64(3), id1>>workerIDShift&maxWorkerID)
	assert.Equal(t, now.UnixMilli()-snowflakeEpoch, id1>>timestampShift)

	// 时钟回拨太多
	now = now.Add(-time.Second)
	_, err = s.Generate()
	assert.ErrorIs(t, err, errs.ErrUnsupportedOperation)
}

func TestUUID(t *testing.T) {
	gen, err := KeyGenerators.New(base.Configuration{Type: TypeUUID})
	require.NoError(t, err)
	v, err := gen.Generate()
	require.NoError(t, err)
	assert.Len(t, v, 32)
}
