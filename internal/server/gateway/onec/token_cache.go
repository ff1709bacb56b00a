package onec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshBefore за сколько до истечения токен считается устаревшим
const DefaultRefreshBefore = time.Minute

// FetchFunc получает новый токен у 1С
type FetchFunc func(ctx context.Context) (string, error)

// TokenCache хранит bearer токен 1С.
// Одновременные обновления схлопываются в один запрос.
type TokenCache struct {
	expiresAt     time.Time // нулевое значение: срок не указан в токене
	now           func() time.Time
	group         singleflight.Group
	token         string
	refreshBefore time.Duration
	fetchTimeout  time.Duration
	mu            sync.RWMutex
}

// NewTokenCache создает пустой кеш токена
func NewTokenCache(refreshBefore time.Duration) *TokenCache {
	if refreshBefore < 0 {
		refreshBefore = DefaultRefreshBefore
	}
	return &TokenCache{
		now:           time.Now,
		refreshBefore: refreshBefore,
		fetchTimeout:  DefaultTimeout,
	}
}

// Token возвращает действующий токен, при необходимости получая новый через fetch.
// Запрос токена не зависит от отмены ctx вызвавшего: его результат ждут другие вызовы.
func (c *TokenCache) Token(ctx context.Context, fetch FetchFunc) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		// другой вызов мог уже обновить токен
		if token, ok := c.cached(); ok {
			return token, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		token, err := fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		if token == "" {
			return "", fmt.Errorf("onec returned empty token")
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = tokenExpiry(token)
		c.mu.Unlock()

		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("failed to get onec token: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", fmt.Errorf("failed to get onec token: %w", res.Err)
		}
		return res.Val.(string), nil
	}
}

// Invalidate сбрасывает токен, следующий вызов Token запросит новый
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" {
		return "", false
	}
	if c.expiresAt.IsZero() {
		return c.token, true
	}
	if c.expiresAt.Sub(c.now()) > c.refreshBefore {
		return c.token, true
	}
	return "", false
}

// tokenExpiry читает claim exp без проверки подписи
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}

	return exp.Time
}
