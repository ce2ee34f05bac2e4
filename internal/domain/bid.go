package domain

import (
	"time"

	"github.com/xela07ax/lendgate/internal/ledger"
)

// BidStatus — состояние ставки в аукционе.
type BidStatus string

const (
	BidActive    BidStatus = "active"
	BidWinning   BidStatus = "winning"
	BidLosing    BidStatus = "losing"
	BidWithdrawn BidStatus = "withdrawn"
)

// Bid — ставка восходящего аукциона по одному займу.
// Инварианты: суммы строго растут по порядку sequence; как только есть хотя бы
// одна ставка, ровно одна из них имеет статус winning.
type Bid struct {
	ID         string       `json:"id"`
	LoanID     string       `json:"loan_id"`
	BidderFID  int64        `json:"bidder_fid"`
	BidderKind ActorKind    `json:"bidder_kind"`
	Amount     ledger.Micro `json:"amount"`
	Sequence   int64        `json:"sequence"` // монотонный счетчик в рамках займа
	Status     BidStatus    `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}
