package cache

import "fmt"

// RateLimitKey scopes a fixed-window counter to one caller and window.
func RateLimitKey(subject string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", subject, window)
}

// AuthFailureKey counts 401 responses sent to one client address in a window.
func AuthFailureKey(addr string, window int64) string {
	return fmt.Sprintf("authfail:%s:%d", addr, window)
}

func StatsKey(userID string) string {
	return fmt.Sprintf("stats:%s", userID)
}
