package auction

/*
Файл feed.go — живая лента ставок. Дизайн poll-then-diff и сознательно
lossy: лента периодически опрашивает хранилище и считает дифф. Чистое
добавление одной ставки наверх дает событие append; любое расхождение,
которое нельзя объяснить чистым append (пропущенный опрос, снятая ставка),
дает полный snapshot для принудительной сверки потребителя. В простое
уходят heartbeat, чтобы канал не считался мертвым. Каждый snapshot
авторитетен; потребитель обязан терпеть склеенные обновления.
*/

import (
	"context"
	"sort"
	"time"

	"github.com/xela07ax/lendgate/internal/domain"
	"go.uber.org/zap"
)

// EventType — тип события ленты.
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventAppend    EventType = "append"
	EventHeartbeat EventType = "heartbeat"
)

// Event — кадр ленты. Snapshot несет полный список по убыванию суммы,
// append — ровно одну новую ставку, heartbeat — пустой.
type Event struct {
	Type   EventType    `json:"type"`
	LoanID string       `json:"loan_id"`
	Bids   []domain.Bid `json:"bids,omitempty"`
	Bid    *domain.Bid  `json:"bid,omitempty"`
	At     time.Time    `json:"at"`
}

// FeedConfig настраивает частоту опроса и пульса.
type FeedConfig struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		PollInterval:      2 * time.Second,
		HeartbeatInterval: 25 * time.Second,
	}
}

type Feed struct {
	bids   BidStore
	cfg    FeedConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewFeed(bids BidStore, cfg FeedConfig, logger *zap.Logger) *Feed {
	if cfg.PollInterval <= 0 {
		cfg = DefaultFeedConfig()
	}
	return &Feed{
		bids:   bids,
		cfg:    cfg,
		logger: logger.Named("bid-feed"),
		now:    time.Now,
	}
}

// Stream запускает цикл ленты для одного займа. Канал закрывается при
// отмене контекста. Переполнение буфера потребителя не блокирует опрос:
// кадр теряется, следующим уходит полный snapshot.
func (f *Feed) Stream(ctx context.Context, loanID string) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		var lastSeq int64 = -1
		var lastTopID string
		forceSnapshot := true // первый кадр всегда snapshot
		lastEmit := time.Time{}

		emit := func(ev Event) bool {
			select {
			case out <- ev:
				lastEmit = ev.At
				return true
			default:
				// Потребитель не успевает: кадр коалесцируется в будущий snapshot
				forceSnapshot = true
				return false
			}
		}

		ticker := time.NewTicker(f.cfg.PollInterval)
		defer ticker.Stop()

		for {
			bids, err := f.bids.ListBids(ctx, loanID)
			if err != nil {
				f.logger.Warn("feed poll failed", zap.String("loan_id", loanID), zap.Error(err))
				forceSnapshot = true
			} else {
				ev, changed := f.diff(loanID, bids, &lastSeq, &lastTopID, &forceSnapshot)
				if changed {
					emit(ev)
				} else if f.now().Sub(lastEmit) >= f.cfg.HeartbeatInterval {
					emit(Event{Type: EventHeartbeat, LoanID: loanID, At: f.now()})
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

// diff сравнивает свежий список с последним наблюдением и выбирает кадр.
func (f *Feed) diff(loanID string, bids []domain.Bid, lastSeq *int64, lastTopID *string, forceSnapshot *bool) (Event, bool) {
	maxSeq := int64(-1)
	var newest *domain.Bid
	var top *domain.Bid
	for i := range bids {
		b := &bids[i]
		if b.Sequence > maxSeq {
			maxSeq = b.Sequence
			newest = b
		}
		if b.Status == domain.BidWinning {
			top = b
		}
	}
	topID := ""
	if top != nil {
		topID = top.ID
	}

	switch {
	case *forceSnapshot:
		// принудительная сверка
	case maxSeq == *lastSeq && topID == *lastTopID:
		return Event{}, false // изменений нет
	case maxSeq == *lastSeq+1 && newest != nil && newest.ID == topID:
		// Чистый append: ровно одна новая ставка и она же стала вершиной
		*lastSeq = maxSeq
		*lastTopID = topID
		return Event{Type: EventAppend, LoanID: loanID, Bid: newest, At: f.now()}, true
	default:
		// Вершина сменилась без детектируемого чистого append — snapshot
	}

	*forceSnapshot = false
	*lastSeq = maxSeq
	*lastTopID = topID

	ordered := make([]domain.Bid, len(bids))
	copy(ordered, bids)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Amount > ordered[j].Amount })

	return Event{Type: EventSnapshot, LoanID: loanID, Bids: ordered, At: f.now()}, true
}
