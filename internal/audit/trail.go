package audit

/*
Файл trail.go реализует Audit Trail — движок для сбора и персистентности
журнала решений ядра.

Ключевые особенности архитектуры:
- Non-blocking Logging: Использование неблокирующих каналов для передачи событий
  из Hot Path допуска. Это гарантирует, что задержки записи в БД не влияют на Response Time.
- Batching & Efficiency: Накопление событий в памяти и пакетная запись (Bulk Insert)
  в PostgreSQL по таймеру или при достижении лимита (100 событий).
- Drain Pattern & Graceful Shutdown: Реализован механизм полной вычитки буфера
  при остановке сервиса. С помощью sync.WaitGroup и закрытия каналов гарантируется
  Final Flush — отсутствие потерь данных при перезагрузке системы.
- Reliability: Устойчивость к кратковременным сбоям БД за счет изоляции воркера
  и использования контекста Background для завершающих операций.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []DecisionEvent) error
}

type Auditor interface {
	Log(event DecisionEvent)
}

// BufferGauge позволяет отдавать заполненность буфера в метрики,
// не завязывая пакет на prometheus напрямую.
type BufferGauge interface {
	Set(v float64)
}

type Trail struct {
	ch     chan DecisionEvent // Буфер для асинхронности
	repo   StorageInterface
	logger *zap.Logger
	gauge  BufferGauge // опционально
	wg     sync.WaitGroup
	// Защита от вызова Log после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)

	batchSize     int
	flushInterval time.Duration
}

type TrailOption func(*Trail)

func WithBufferGauge(g BufferGauge) TrailOption {
	return func(t *Trail) { t.gauge = g }
}

func WithBatching(size int, interval time.Duration) TrailOption {
	return func(t *Trail) {
		if size > 0 {
			t.batchSize = size
		}
		if interval > 0 {
			t.flushInterval = interval
		}
	}
}

func NewTrail(repo StorageInterface, logger *zap.Logger, opts ...TrailOption) *Trail {
	t := &Trail{
		ch:            make(chan DecisionEvent, 10000), // Очередь на 10к событий
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit")),
		batchSize:     100,
		flushInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем (Drain Pattern). Завершение горутины происходит исключительно через закрытие входного канала.
	t.logger.Info("stopping auditor: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("auditor stopped gracefully")
}

func (t *Trail) Log(event DecisionEvent) {
	// Убеждаемся, что таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: auditor is stopping", zap.String("id", event.ID))
		return
	}

	// используем стратегию Load Shedding (сброс нагрузки)
	select {
	case t.ch <- event:
		if t.gauge != nil {
			t.gauge.Set(float64(len(t.ch)))
		}
	default:
		// Если канал переполнен (Backpressure), пишем в стандартный логгер
		// Чтобы не терять данные в критических ситуациях
		t.logger.Error("audit_buffer_overflow",
			zap.Int64("agent_fid", event.AgentFID),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]DecisionEvent, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Используем Background, так как основной контекст может быть уже закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop() — это самодостаточный сигнал для завершения.
				// Воркер сначала вычитает всё, что осталось в очереди, только потом
				// получит ok == false, сделает финальный flush() и выйдет.
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if t.gauge != nil {
				t.gauge.Set(float64(len(t.ch)))
			}
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
