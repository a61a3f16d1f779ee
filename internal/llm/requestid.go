// internal/llm/requestid.go
package llm

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// NewRequestID 时间前缀加随机后缀，仅用于关联同一次调用的请求与响应日志
func NewRequestID() string {
	return newRequestID(time.Now())
}

func newRequestID(now time.Time) string {
	suffix := strconv.FormatUint(rand.Uint64(), 36)
	if len(suffix) < 8 {
		suffix = strings.Repeat("0", 8-len(suffix)) + suffix
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + suffix[:8]
}
