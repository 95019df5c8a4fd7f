// internal/blockchain/rpc/pool.go
package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/blockchain"
)

// Основные константы
const (
	DefaultRetries    = 2
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultTimeout    = 10 * time.Second
	maxRetryDelay     = 5 * time.Second
)

// ErrNoEndpoints возникает, когда список RPC узлов пуст
var ErrNoEndpoints = errors.New("no RPC endpoints available")

// Options задаёт политику повторов и ограничения частоты запросов.
type Options struct {
	Retries        int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	// RateLimit – запросов в секунду на весь пул, 0 отключает ограничение.
	RateLimit float64
}

// Endpoint связывает клиент конкретной сети с его URL.
type Endpoint[T any] struct {
	URL    string
	Client T
}

// Pool – пул RPC узлов с переключением узла на каждой попытке.
type Pool[T any] struct {
	endpoints []Endpoint[T]
	current   int
	mu        sync.Mutex
	limiter   *rate.Limiter
	opts      Options
	logger    *zap.Logger
}

// NewPool создает пул и подставляет значения по умолчанию
func NewPool[T any](endpoints []Endpoint[T], opts Options, logger *zap.Logger) (*Pool[T], error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultTimeout
	}

	p := &Pool[T]{
		endpoints: endpoints,
		opts:      opts,
		logger:    logger.Named("rpc-pool"),
	}
	if opts.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return p, nil
}

// next возвращает текущий узел и сдвигает указатель на следующий
func (p *Pool[T]) next() Endpoint[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.endpoints[p.current]
	p.current = (p.current + 1) % len(p.endpoints)
	return ep
}

// Size возвращает количество узлов в пуле
func (p *Pool[T]) Size() int {
	return len(p.endpoints)
}

// Execute выполняет RPC-запрос с автоматическим переключением узлов при ошибке.
// Ошибки "not found" не повторяются и возвращаются как есть, всё остальное
// после исчерпания попыток оборачивается в *blockchain.NetworkError.
func (p *Pool[T]) Execute(ctx context.Context, method string, operation func(ctx context.Context, client T) error) error {
	var lastURL string

	op := func() (struct{}, error) {
		ep := p.next()
		lastURL = ep.URL

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()

		err := operation(reqCtx, ep.Client)
		if err == nil {
			return struct{}{}, nil
		}
		if blockchain.IsNotFound(err) || ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.opts.RetryDelay
	policy.MaxInterval = maxRetryDelay

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(p.opts.Retries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Debug("RPC request failed, trying next node",
				zap.String("method", method),
				zap.String("url", lastURL),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err == nil {
		return nil
	}
	if blockchain.IsNotFound(err) {
		return err
	}
	return blockchain.NewNetworkError(err, lastURL, method)
}
