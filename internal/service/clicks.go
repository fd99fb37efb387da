package service

import (
	"context"

	"go.uber.org/zap"

	"shortlink/internal/model"
)

// dispatchClick queues link for counting without blocking. A full queue or
// a closed service drops the click.
func (s *Service) dispatchClick(link *model.ShortLink) {
	s.clickMu.RLock()
	defer s.clickMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.clicks <- link:
	default:
		s.logger.Warn("click queue full, dropping click", zap.String("short_code", link.ShortCode))
	}
}

func (s *Service) clickWorker() {
	defer s.wg.Done()
	for link := range s.clicks {
		ctx, cancel := context.WithTimeout(context.Background(), s.clickTimeout)
		if err := s.IncrementClickCount(ctx, link); err != nil {
			s.logger.Warn("click count update failed",
				zap.String("short_code", link.ShortCode),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting clicks and waits for queued ones to be written.
func (s *Service) Close() {
	s.clickMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.clicks)
	}
	s.clickMu.Unlock()
	s.wg.Wait()
}
