package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HeaderName 网关 webhook 签名头
const HeaderName = "x-hub-signature"

// Sign 计算 HMAC-SHA256(secret, body) 的十六进制签名
func Sign(rawBody, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 校验 webhook 签名
//
// 签名和密钥缺一不可，缺失即拒绝。比较使用 hmac.Equal（常数时间），
// 长度不一致或非法十六进制一律视为校验失败，不会 panic。
// 兼容 "sha256=<hex>" 形式的签名头。
func Verify(rawBody []byte, signatureHeader string, secret []byte) (ok bool) {
	if signatureHeader == "" || len(secret) == 0 {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	provided, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signatureHeader), "sha256="))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	return hmac.Equal(provided, mac.Sum(nil))
}
