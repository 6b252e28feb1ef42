// Package expiration вычисляет окно ответа покупателя на предложение замены.
package expiration

import (
	"fmt"
	"time"
)

// Window возвращает длительность окна ответа.
func Window(hours int) time.Duration {
	return time.Duration(hours) * time.Hour
}

// IsExpired сообщает, истекло ли окно: now - sendDate >= hours.
// Если now раньше sendDate, окно считается открытым.
func IsExpired(sendDate time.Time, hours int, now time.Time) bool {
	if now.Before(sendDate) {
		return false
	}
	return now.Sub(sendDate) >= Window(hours)
}

// Remaining возвращает оставшееся время окна и false, если окно уже истекло.
func Remaining(sendDate time.Time, hours int, now time.Time) (time.Duration, bool) {
	if IsExpired(sendDate, hours, now) {
		return 0, false
	}
	if now.Before(sendDate) {
		return Window(hours), true
	}
	return Window(hours) - now.Sub(sendDate), true
}

// Format возвращает оставшееся время в виде «5h 59m 59s».
func Format(d time.Duration) string {
	if d <= 0 {
		return "Time limit reached"
	}
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
