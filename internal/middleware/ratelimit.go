package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit 返回一个 Gin 中间件，基于客户端 IP 做令牌桶限流。
// maxRequests: 在指定时间窗口内允许的最大请求数。
// window: 速率限制的时间窗口。
//
// 限流器按 IP 惰性创建，长时间不活跃的条目会被定期清掉，
// 避免 map 无限增长。所有状态都在进程内。
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	// 启动时检查依赖
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)
	limit := rate.Every(window / time.Duration(maxRequests))

	// 后台清理不活跃的限流条目
	go func() {
		for range time.Tick(time.Minute) {
			mu.Lock()
			for ip, v := range visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(visitors, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		// 使用客户端 IP 作为限流键
		// 注意：如果服务在反向代理后面，需要确保获取到真实的客户端 IP
		ip := c.ClientIP()

		mu.Lock()
		v, ok := visitors[ip]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(limit, maxRequests)}
			visitors[ip] = v
		}
		v.lastSeen = time.Now()
		mu.Unlock()

		if !v.limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
