package discipline

import (
	"sync/atomic"
	"time"
)

// Shutdown — запрос остановки цикла. Устанавливается только доставкой сигнала,
// проверяется циклом на границах цикла.
type Shutdown struct {
	requested atomic.Bool
	ch        chan struct{}
}

// NewShutdown создаёт незапрошенную остановку
func NewShutdown() *Shutdown {
	return &Shutdown{ch: make(chan struct{})}
}

// Request запрашивает остановку и сообщает, была ли она уже запрошена раньше.
func (s *Shutdown) Request() (already bool) {
	if s.requested.Swap(true) {
		return true
	}
	close(s.ch)
	return false
}

// Requested сообщает, запрошена ли остановка
func (s *Shutdown) Requested() bool {
	return s.requested.Load()
}

// Done закрывается при первом Request
func (s *Shutdown) Done() <-chan struct{} {
	return s.ch
}

// Sleep ждёт d или запроса остановки. Возвращает true, если остановка запрошена.
func (s *Shutdown) Sleep(d time.Duration) bool {
	if d <= 0 {
		return s.Requested()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return s.Requested()
	case <-s.ch:
		return true
	}
}
