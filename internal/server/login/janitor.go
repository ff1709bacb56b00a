package login

import (
	"context"
	"log/slog"
	"time"
)

// DefaultJanitorInterval период очистки истекших сессий
const DefaultJanitorInterval = time.Minute

// PurgeExpiredSessions удаляет сессии, истекшие более ExpiredRetention назад
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int, error) {
	return s.sessions.DeleteExpiredSessions(ctx, s.now().Add(-s.cfg.ExpiredRetention))
}

// RunJanitor удаляет истекшие сессии с заданным периодом до отмены ctx
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.PurgeExpiredSessions(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to purge expired sessions", slog.String("error", err.Error()))
				continue
			}
			if deleted > 0 {
				s.logger.InfoContext(ctx, "expired sessions purged", slog.Int("count", deleted))
			}
		}
	}
}
