package audit

/*
Файл pool.go реализует пул воркеров, на котором исполняется доставка событий аудита.

Ключевые особенности:
- Non-blocking Submit: вызывающий код (Hot Path приложения) никогда не ждет отправки.
  Если очередь заполнена, Submit сразу возвращает false (Load Shedding).
- Drain Pattern & Graceful Shutdown: Stop закрывает вход и ждет, пока воркеры
  вычитают всё, что уже лежит в очереди.
- Isolation: паника внутри задачи не убивает воркер.
*/

import (
	"context"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

type Pool struct {
	ch      chan func() // Буфер задач
	workers int
	logger  *zap.Logger
	metrics *Metrics
	wg      sync.WaitGroup

	// mu защищает closed и закрытие канала: Submit под RLock не может отправить в закрытый канал.
	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queueSize int, logger *zap.Logger, metrics *Metrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		ch:      make(chan func(), queueSize),
		workers: workers,
		logger:  logger.With(zap.String("mod", "audit-pool")),
		metrics: metrics,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit ставит задачу в очередь, не блокируясь. Ошибка — пул остановлен (ErrStopped) или переполнен (ErrQueueFull).
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrStopped
	}

	select {
	case p.ch <- task:
		p.metrics.setQueueDepth(len(p.ch))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop «запирает» вход и ждет, пока воркеры всё доделают. ctx ограничивает ожидание.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch) // Новые задачи больше не принимаются
	p.mu.Unlock()

	p.logger.Info("stopping audit pool: draining queue...", zap.Int("pending", len(p.ch)))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("audit pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("audit pool stop interrupted", zap.Int("pending", len(p.ch)))
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	// Канал закрыт в Stop() — range сначала вычитает остатки, потом завершится.
	for task := range p.ch {
		p.metrics.setQueueDepth(len(p.ch))
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("audit task panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	task()
}
