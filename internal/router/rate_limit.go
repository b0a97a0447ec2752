package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/expertmarket/settlement/internal/http/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 从请求提取限流维度。
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则：WindowSeconds 内同一 key 最多 MaxRequests 次。
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
}

// INCR 与 EXPIRE 必须原子执行，否则首个请求崩溃会留下永不过期的计数键。
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// RateLimitMiddleware 基于 Redis 的频率限制。
// client 为 nil 或规则不完整时直接放行；Redis 出错时拒绝请求而不是放行，
// 避免结账接口在限流失效的窗口被刷。
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || rule.WindowSeconds <= 0 || rule.MaxRequests <= 0 {
			c.Next()
			return
		}

		count, ttlSeconds, err := incrWindow(c, client, rule, keyFunc)
		if err != nil {
			response.Error(c, response.CodeInternal, "rate limiter unavailable")
			c.Abort()
			return
		}

		if count > int64(rule.MaxRequests) {
			wait := int(ttlSeconds)
			if wait < 1 {
				wait = rule.WindowSeconds
			}
			if wait < 1 {
				wait = 1
			}
			response.Error(c, response.CodeTooManyRequests, fmt.Sprintf("too many requests, retry in %d seconds", wait))
			c.Abort()
			return
		}

		c.Next()
	}
}

func incrWindow(c *gin.Context, client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) (count, ttl int64, err error) {
	key := ""
	if keyFunc != nil {
		key = strings.TrimSpace(keyFunc(c))
	}
	if key == "" {
		key = c.ClientIP()
	}
	if rule.Prefix != "" {
		key = rule.Prefix + ":" + key
	}

	result, err := rateLimitScript.Run(c.Request.Context(), client, []string{key}, rule.WindowSeconds).Result()
	if err != nil {
		return 0, 0, err
	}
	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result: %T", result)
	}
	count, ok = toInt64(values[0])
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit count: %T", values[0])
	}
	ttl, _ = toInt64(values[1])
	return count, ttl, nil
}

// KeyByIP 按客户端 IP 限流。
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByIPAndJSONField 按请求体 JSON 字段加 IP 组合限流，
// 推广点击上报用它把同一推广码的刷量压在单 IP 维度。
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(strings.TrimSpace(readJSONField(c, field)))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

// readJSONField 读取请求体中的字符串字段并原样还原 body 供后续绑定。
func readJSONField(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if text, ok := payload[field].(string); ok {
		return strings.TrimSpace(text)
	}
	return ""
}

// toInt64 兼容 go-redis 对 Lua 返回值的各种数值装箱。
func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint64:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	default:
		return 0, false
	}
}
