package port

import "time"

// Clock абстрагирует текущее время для детерминированных тестов
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает time.Now в UTC
type SystemClock struct{}

// Now возвращает текущее время
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
