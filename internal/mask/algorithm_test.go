package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

func TestAlgorithm_Mask(t *testing.T) {
	testcases := []struct {
		name  string
		cfg   base.Configuration
		plain any
		want  any
	}{
		{
			name:  "保留前三后四",
			cfg:   base.Configuration{Type: TypeKeepFirstNLastM, Props: map[string]any{"first-n": 3, "last-m": 4}},
			plain: "13812345678",
			want:  "138****5678",
		},
		{
			name:  "整数按照字符串处理",
			cfg:   base.Configuration{Type: TypeKeepFirstNLastM, Props: map[string]any{"first-n": 3, "last-m": 4}},
			plain: int64(13812345678),
			want:  "138****5678",
		},
		{
			name:  "长度不够保留的时候全部遮盖",
			cfg:   base.Configuration{Type: TypeKeepFirstNLastM, Props: map[string]any{"first-n": 3, "last-m": 4}},
			plain: "12345",
			want:  "*****",
		},
		{
			name:  "多字节字符",
			cfg:   base.Configuration{Type: TypeKeepFirstNLastM, Props: map[string]any{"first-n": 1, "last-m": 1}},
			plain: "张三丰",
			want:  "张*丰",
		},
		{
			name:  "需要遮盖的位置本来就是替换字符",
			cfg:   base.Configuration{Type: TypeKeepFirstNLastM, Props: map[string]any{"first-n": 1, "last-m": 1}},
			plain: "a*b",
			want:  "***",
		},
		{
			name:  "部分位置本来就是替换字符",
			cfg:   base.Configuration{Type: TypeKeepFirstNLastM, Props: map[string]any{"first-n": 1, "last-m": 1}},
			plain: "a*cb",
			want:  "a**b",
		},
		{
			name:  "明文全部是替换字符",
			cfg:   base.Configuration{Type: TypeMaskFirstNLastM, Props: map[string]any{"first-n": 1, "last-m": 0}},
			plain: "**",
			want:  "**",
		},
		{
			name: "自定义替换字符",
			cfg: base.Configuration{Type: TypeKeepFirstNLastM,
				Props: map[string]any{"first-n": 1, "last-m": 1, "replace-char": "#"}},
			plain: []byte("abcd"),
			want:  "a##d",
		},
		{
			name:  "遮盖前一后二",
			cfg:   base.Configuration{Type: TypeMaskFirstNLastM, Props: map[string]any{"first-n": 1, "last-m": 2}},
			plain: "abcdef",
			want:  "*bcd**",
		},
		{
			name:  "遮盖前零后零等于全部遮盖",
			cfg:   base.Configuration{Type: TypeMaskFirstNLastM, Props: map[string]any{"first-n": 0, "last-m": 0}},
			plain: "abcdef",
			want:  "******",
		},
		{
			name:  "遮盖中间",
			cfg:   base.Configuration{Type: TypeMaskFromXToY, Props: map[string]any{"from-x": 2, "to-y": 4}},
			plain: "abcdefg",
			want:  "ab***fg",
		},
		{
			name:  "起点超过长度",
			cfg:   base.Configuration{Type: TypeMaskFromXToY, Props: map[string]any{"from-x": 10, "to-y": 12}},
			plain: "abc",
			want:  "***",
		},
		{
			name:  "只保留中间",
			cfg:   base.Configuration{Type: TypeKeepFromXToY, Props: map[string]any{"from-x": 1, "to-y": 2}},
			plain: "abcde",
			want:  "*bc**",
		},
		{
			name:  "遮盖特殊字符之前",
			cfg:   base.Configuration{Type: TypeMaskBeforeSpecialChars, Props: map[string]any{"special-chars": "@"}},
			plain: "alice@x.com",
			want:  "*****@x.com",
		},
		{
			name:  "找不到特殊字符",
			cfg:   base.Configuration{Type: TypeMaskBeforeSpecialChars, Props: map[string]any{"special-chars": "@"}},
			plain: "alice",
			want:  "*****",
		},
		{
			name:  "特殊字符在开头",
			cfg:   base.Configuration{Type: TypeMaskBeforeSpecialChars, Props: map[string]any{"special-chars": "@"}},
			plain: "@x",
			want:  "**",
		},
		{
			name:  "遮盖特殊字符之后",
			cfg:   base.Configuration{Type: TypeMaskAfterSpecialChars, Props: map[string]any{"special-chars": "@"}},
			plain: "alice@x.com",
			want:  "alice@*****",
		},
		{
			name:  "MD5",
			cfg:   base.Configuration{Type: TypeMD5},
			plain: "abc",
			want:  "900150983cd24fb0d6963f7d28e17f72",
		},
		{
			name:  "MD5加盐",
			cfg:   base.Configuration{Type: TypeMD5, Props: map[string]any{"salt": "c"}},
			plain: "ab",
			want:  "900150983cd24fb0d6963f7d28e17f72",
		},
		{
			name:  "NULL",
			cfg:   base.Configuration{Type: TypeMaskFromXToY, Props: map[string]any{"from-x": 0, "to-y": 1}},
			plain: nil,
			want:  nil,
		},
		{
			name:  "空字符串",
			cfg:   base.Configuration{Type: TypeKeepFirstNLastM, Props: map[string]any{"first-n": 1, "last-m": 1}},
			plain: "",
			want:  "",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			alg, err := Algorithms.New(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.cfg.Type, alg.Type())
			res, err := alg.Mask(tc.plain)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res)
		})
	}
}

// 非空的值脱敏之后一定和明文不同
func TestAlgorithm_NeverPlain(t *testing.T) {
	cfgs := []base.Configuration{
		{Type: TypeKeepFirstNLastM, Props: map[string]any{"first-n": 2, "last-m": 2}},
		{Type: TypeMaskFirstNLastM, Props: map[string]any{"first-n": 0, "last-m": 1}},
		{Type: TypeKeepFromXToY, Props: map[string]any{"from-x": 0, "to-y": 3}},
		{Type: TypeMaskFromXToY, Props: map[string]any{"from-x": 3, "to-y": 5}},
		{Type: TypeMaskBeforeSpecialChars, Props: map[string]any{"special-chars": "-"}},
		{Type: TypeMaskAfterSpecialChars, Props: map[string]any{"special-chars": "-"}},
		{Type: TypeMD5},
	}
	plains := []string{"a", "ab", "abc", "abcd", "a-b", "-ab", "ab-", "abcdefgh", "中文-名字",
		"a*b", "a**b", "*ab*", "ab**", "**ab", "*-*", "a*-*b", "***a"}
	for _, cfg := range cfgs {
		alg, err := Algorithms.New(cfg)
		require.NoError(t, err)
		for _, p := range plains {
			res, err := alg.Mask(p)
			require.NoError(t, err)
			assert.NotEqual(t, p, res, "%s %s", cfg.Type, p)
		}
	}
}

func TestAlgorithms_Config(t *testing.T) {
	testcases := []struct {
		name    string
		cfg     base.Configuration
		wantErr error
	}{
		{
			name:    "缺少first-n",
			cfg:     base.Configuration{Type: TypeKeepFirstNLastM, Props: map[string]any{"last-m": 1}},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "负数",
			cfg:     base.Configuration{Type: TypeMaskFirstNLastM, Props: map[string]any{"first-n": -1, "last-m": 1}},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name: "替换字符不是单个字符",
			cfg: base.Configuration{Type: TypeMaskFirstNLastM,
				Props: map[string]any{"first-n": 1, "last-m": 1, "replace-char": "**"}},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "起点大于终点",
			cfg:     base.Configuration{Type: TypeMaskFromXToY, Props: map[string]any{"from-x": 3, "to-y": 1}},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "缺少特殊字符",
			cfg:     base.Configuration{Type: TypeMaskBeforeSpecialChars},
			wantErr: errs.ErrInvalidConfig,
		},
		{
			name:    "未知算法",
			cfg:     base.Configuration{Type: "GENERALIZATION"},
			wantErr: errs.ErrAlgorithmNotFound,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Algorithms.New(tc.cfg)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
