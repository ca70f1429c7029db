package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrEmptySecret is a configuration error: nothing can be signed without a secret key.
var ErrEmptySecret = errors.New("okx: empty secret key")

const (
	loginVerifyPath = "/users/self/verify"
	restTimeLayout  = "2006-01-02T15:04:05.000Z"
)

// Sign returns base64(HMAC-SHA256(secret, timestamp+METHOD+path+body)).
func Sign(timestamp, method, path, body, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte(path))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// restTimestamp is the ISO-8601 millisecond form REST requests are signed with.
func restTimestamp(t time.Time) string {
	return t.UTC().Format(restTimeLayout)
}

// loginTimestamp is the unix-seconds form the private stream login is signed with.
func loginTimestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
