package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp 返回 REST 签名使用的毫秒精度 UTC ISO-8601 时间戳。
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Sign = base64(HMAC-SHA256(secret, timestamp + UPPER(method) + path + body))。
func Sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// LoginSign 返回私有 WS 登录签名，timestamp 为 Unix 秒。
func LoginSign(secret string, unixSeconds int64) (timestamp, sign string) {
	timestamp = strconv.FormatInt(unixSeconds, 10)
	return timestamp, Sign(secret, timestamp, "GET", "/users/self/verify", "")
}
