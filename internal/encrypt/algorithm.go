package encrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cast"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

const (
	TypeAES = "AES"
	TypeRC4 = "RC4"
	TypeMD5 = "MD5"
)

// Algorithm 加密算法。NULL 加密之后还是 NULL
type Algorithm interface {
	Type() string
	Encrypt(plain any) (any, error)
}

// Decryptor 可以解密的算法才能用在密文列上
type Decryptor interface {
	Algorithm
	Decrypt(cipher any) (any, error)
}

var Algorithms = func() *base.Registry[Algorithm] {
	r := base.NewRegistry[Algorithm]("encrypt")
	r.Register(TypeAES, func(props *base.Props) (Algorithm, error) {
		return NewAES(props)
	})
	r.Register(TypeRC4, func(props *base.Props) (Algorithm, error) {
		return NewRC4(props)
	})
	r.Register(TypeMD5, func(props *base.Props) (Algorithm, error) {
		return NewMD5(props), nil
	})
	return r
}()

// AES 密钥是 aes-key-value 的 SHA-1 的前 16 个字节，ECB 模式，PKCS#5 填充，输出 base64
type AES struct {
	block cipher.Block
}

func NewAES(props *base.Props) (*AES, error) {
	key, err := props.RequiredString("aes-key-value")
	if err != nil {
		return nil, err
	}
	digest := sha1.Sum([]byte(key))
	block, err := aes.NewCipher(digest[:16])
	if err != nil {
		return nil, errs.NewInvalidConfigError("AES 密钥非法: %s", err)
	}
	return &AES{block: block}, nil
}

func (*AES) Type() string {
	return TypeAES
}

func (a *AES) Encrypt(plain any) (any, error) {
	if plain == nil {
		return nil, nil
	}
	s, err := cast.ToStringE(plain)
	if err != nil {
		return nil, err
	}
	src := pkcs5Padding([]byte(s), a.block.BlockSize())
	dst := make([]byte, len(src))
	for i := 0; i < len(src); i += a.block.BlockSize() {
		a.block.Encrypt(dst[i:], src[i:])
	}
	return base64.StdEncoding.EncodeToString(dst), nil
}

func (a *AES) Decrypt(ciphertext any) (any, error) {
	if ciphertext == nil {
		return nil, nil
	}
	data, err := decodeBase64(ciphertext)
	if err != nil {
		return nil, err
	}
	size := a.block.BlockSize()
	if len(data) == 0 || len(data)%size != 0 {
		return nil, fmt.Errorf("密文长度 %d 不是 %d 的倍数", len(data), size)
	}
	dst := make([]byte, len(data))
	for i := 0; i < len(data); i += size {
		a.block.Decrypt(dst[i:], data[i:])
	}
	res, err := pkcs5Unpadding(dst, size)
	if err != nil {
		return nil, err
	}
	return string(res), nil
}

func pkcs5Padding(src []byte, size int) []byte {
	n := size - len(src)%size
	return append(src, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs5Unpadding(src []byte, size int) ([]byte, error) {
	n := int(src[len(src)-1])
	if n == 0 || n > size || n > len(src) {
		return nil, fmt.Errorf("非法的填充 %d", n)
	}
	for _, b := range src[len(src)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("非法的填充 %d", n)
		}
	}
	return src[:len(src)-n], nil
}

func decodeBase64(v any) ([]byte, error) {
	var s string
	switch val := v.(type) {
	case []byte:
		s = string(val)
	default:
		str, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		s = str
	}
	return base64.StdEncoding.DecodeString(s)
}

// RC4 密钥长度 5 到 255 个字节，输出 base64
type RC4 struct {
	key []byte
}

func NewRC4(props *base.Props) (*RC4, error) {
	key, err := props.RequiredString("rc4-key-value")
	if err != nil {
		return nil, err
	}
	if len(key) < 5 || len(key) > 255 {
		return nil, errs.NewInvalidConfigError("RC4 密钥长度必须在 5 到 255 之间，实际是 %d", len(key))
	}
	return &RC4{key: []byte(key)}, nil
}

func (*RC4) Type() string {
	return TypeRC4
}

func (r *RC4) crypt(src []byte) []byte {
	// 密钥长度已经在创建的时候检查过
	c, _ := rc4.NewCipher(r.key)
	dst := make([]byte, len(src))
	c.XORKeyStream(dst, src)
	return dst
}

func (r *RC4) Encrypt(plain any) (any, error) {
	if plain == nil {
		return nil, nil
	}
	s, err := cast.ToStringE(plain)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.EncodeToString(r.crypt([]byte(s))), nil
}

func (r *RC4) Decrypt(ciphertext any) (any, error) {
	if ciphertext == nil {
		return nil, nil
	}
	data, err := decodeBase64(ciphertext)
	if err != nil {
		return nil, err
	}
	return string(r.crypt(data)), nil
}

// MD5 不可逆，一般用在辅助查询列上。salt 可选
type MD5 struct {
	salt string
}

func NewMD5(props *base.Props) *MD5 {
	return &MD5{salt: props.String("salt", "")}
}

func (*MD5) Type() string {
	return TypeMD5
}

func (m *MD5) Encrypt(plain any) (any, error) {
	if plain == nil {
		return nil, nil
	}
	s, err := cast.ToStringE(plain)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum([]byte(s + m.salt))
	return hex.EncodeToString(sum[:]), nil
}
