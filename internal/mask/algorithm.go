package mask

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

const (
	TypeMD5                    = "MD5"
	TypeKeepFirstNLastM        = "KEEP_FIRST_N_LAST_M"
	TypeKeepFromXToY           = "KEEP_FROM_X_TO_Y"
	TypeMaskFirstNLastM        = "MASK_FIRST_N_LAST_M"
	TypeMaskFromXToY           = "MASK_FROM_X_TO_Y"
	TypeMaskBeforeSpecialChars = "MASK_BEFORE_SPECIAL_CHARS"
	TypeMaskAfterSpecialChars  = "MASK_AFTER_SPECIAL_CHARS"
)

// Algorithm 脱敏算法。NULL 还是 NULL，空字符串还是空字符串，
// 其它情况下结果一定和明文不一样：没有可以遮盖的字符时整个值都会被遮盖。
// 明文全部由替换字符组成的时候没有办法区分，原样返回
type Algorithm interface {
	Type() string
	Mask(plain any) (any, error)
}

var Algorithms = func() *base.Registry[Algorithm] {
	r := base.NewRegistry[Algorithm]("mask")
	r.Register(TypeMD5, func(props *base.Props) (Algorithm, error) {
		return &MD5{salt: props.String("salt", "")}, nil
	})
	r.Register(TypeKeepFirstNLastM, func(props *base.Props) (Algorithm, error) {
		return newFirstNLastM(TypeKeepFirstNLastM, props, true)
	})
	r.Register(TypeMaskFirstNLastM, func(props *base.Props) (Algorithm, error) {
		return newFirstNLastM(TypeMaskFirstNLastM, props, false)
	})
	r.Register(TypeKeepFromXToY, func(props *base.Props) (Algorithm, error) {
		return newFromXToY(TypeKeepFromXToY, props, true)
	})
	r.Register(TypeMaskFromXToY, func(props *base.Props) (Algorithm, error) {
		return newFromXToY(TypeMaskFromXToY, props, false)
	})
	r.Register(TypeMaskBeforeSpecialChars, func(props *base.Props) (Algorithm, error) {
		return newSpecialChars(TypeMaskBeforeSpecialChars, props, true)
	})
	r.Register(TypeMaskAfterSpecialChars, func(props *base.Props) (Algorithm, error) {
		return newSpecialChars(TypeMaskAfterSpecialChars, props, false)
	})
	return r
}()

// plainText nil 表示 NULL
func plainText(plain any) (*string, error) {
	switch v := plain.(type) {
	case nil:
		return nil, nil
	case []byte:
		s := string(v)
		return &s, nil
	}
	s, err := cast.ToStringE(plain)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func replaceChar(props *base.Props) (rune, error) {
	s := props.String("replace-char", "*")
	if utf8.RuneCountInString(s) != 1 {
		return 0, errs.NewInvalidConfigError("replace-char 必须是单个字符，实际是 %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func nonNegative(props *base.Props, key string) (int, error) {
	v, err := props.RequiredInt(key)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errs.NewInvalidConfigError("%s 不能小于 0，实际是 %d", key, v)
	}
	return v, nil
}

// masker 按字符替换，多字节字符算一个
type masker struct {
	typ     string
	replace rune
}

func (m masker) Type() string {
	return m.typ
}

// apply mask 返回每个位置是否需要遮盖
func (m masker) apply(plain any, mask func(i, n int) bool) (any, error) {
	s, err := plainText(plain)
	if err != nil || s == nil {
		return nil, err
	}
	runes := []rune(*s)
	if len(runes) == 0 {
		return "", nil
	}
	masked := 0
	for i := range runes {
		if !mask(i, len(runes)) {
			continue
		}
		// 本来就是替换字符的位置不算遮盖
		if runes[i] != m.replace {
			masked++
		}
		runes[i] = m.replace
	}
	if masked == 0 {
		return strings.Repeat(string(m.replace), len(runes)), nil
	}
	return string(runes), nil
}

// FirstNLastM keep 为 true 的时候保留前 n 后 m 个字符，否则遮盖它们
type FirstNLastM struct {
	masker
	n, m int
	keep bool
}

func newFirstNLastM(typ string, props *base.Props, keep bool) (*FirstNLastM, error) {
	n, err := nonNegative(props, "first-n")
	if err != nil {
		return nil, err
	}
	m, err := nonNegative(props, "last-m")
	if err != nil {
		return nil, err
	}
	rc, err := replaceChar(props)
	if err != nil {
		return nil, err
	}
	return &FirstNLastM{masker: masker{typ: typ, replace: rc}, n: n, m: m, keep: keep}, nil
}

func (a *FirstNLastM) Mask(plain any) (any, error) {
	return a.apply(plain, func(i, size int) bool {
		edge := i < a.n || i >= size-a.m
		return edge != a.keep
	})
}

// FromXToY 下标从 0 开始，两端都包含
type FromXToY struct {
	masker
	x, y int
	keep bool
}

func newFromXToY(typ string, props *base.Props, keep bool) (*FromXToY, error) {
	x, err := nonNegative(props, "from-x")
	if err != nil {
		return nil, err
	}
	y, err := nonNegative(props, "to-y")
	if err != nil {
		return nil, err
	}
	if x > y {
		return nil, errs.NewInvalidConfigError("from-x %d 不能大于 to-y %d", x, y)
	}
	rc, err := replaceChar(props)
	if err != nil {
		return nil, err
	}
	return &FromXToY{masker: masker{typ: typ, replace: rc}, x: x, y: y, keep: keep}, nil
}

func (a *FromXToY) Mask(plain any) (any, error) {
	return a.apply(plain, func(i, _ int) bool {
		in := i >= a.x && i <= a.y
		return in != a.keep
	})
}

// SpecialChars 遮盖第一次出现的特殊字符之前或者之后的部分，特殊字符本身保留
type SpecialChars struct {
	masker
	special string
	before  bool
}

func newSpecialChars(typ string, props *base.Props, before bool) (*SpecialChars, error) {
	special, err := props.RequiredString("special-chars")
	if err != nil {
		return nil, err
	}
	rc, err := replaceChar(props)
	if err != nil {
		return nil, err
	}
	return &SpecialChars{masker: masker{typ: typ, replace: rc}, special: special, before: before}, nil
}

func (a *SpecialChars) Mask(plain any) (any, error) {
	s, err := plainText(plain)
	if err != nil || s == nil {
		return nil, err
	}
	idx := strings.Index(*s, a.special)
	start, end := -1, -1
	if idx >= 0 {
		start = utf8.RuneCountInString((*s)[:idx])
		end = start + utf8.RuneCountInString(a.special)
	}
	return a.apply(*s, func(i, _ int) bool {
		if start < 0 {
			return false
		}
		if a.before {
			return i < start
		}
		return i >= end
	})
}

// MD5 输出十六进制摘要，salt 可选
type MD5 struct {
	salt string
}

func (*MD5) Type() string {
	return TypeMD5
}

func (a *MD5) Mask(plain any) (any, error) {
	s, err := plainText(plain)
	if err != nil || s == nil {
		return nil, err
	}
	sum := md5.Sum([]byte(*s + a.salt))
	return hex.EncodeToString(sum[:]), nil
}
