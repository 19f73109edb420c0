// Package shareid 定义分享ID的格式，服务端和客户端共用。
package shareid

import "regexp"

const derivedLength = 8

var pattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Valid 检查分享ID只包含URL安全字符且长度为1到64
func Valid(id string) bool {
	return pattern.MatchString(id)
}

// Derive 取会话ID的最后8个字符作为分享ID
func Derive(sessionID string) string {
	if len(sessionID) <= derivedLength {
		return sessionID
	}
	return sessionID[len(sessionID)-derivedLength:]
}
