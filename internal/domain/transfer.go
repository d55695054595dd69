package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferDirection distinguishes deposits from withdrawals.
type TransferDirection string

const (
	TransferDirectionDeposit    TransferDirection = "DEPOSIT"
	TransferDirectionWithdrawal TransferDirection = "WITHDRAWAL"
)

// Transfer represents one persisted money movement between a share class's
// basic (home) account and one of its trading accounts.
//
// Amount is stored in the share class's denomination currency when the
// conversion succeeded (Converted true). When no rate was available the
// original quantity is stored unchanged with Converted false and SourceAsset
// preserving the native asset code.
type Transfer struct {
	ID              uuid.UUID
	ExternalRef     string // external event id, idempotency key for batch inserts
	Amount          decimal.Decimal
	Currency        string // share class denomination currency
	SourceAsset     string // native asset of the raw event, e.g. "BTC"
	Converted       bool
	FromAccountKind AccountKind
	FromAccountID   uuid.UUID
	ToAccountKind   AccountKind
	ToAccountID     uuid.UUID
	ValuedAt        time.Time // business event time
	TransferredAt   time.Time // settlement time
}

// Validate enforces the directional invariant: deposits flow Basic → Trading,
// withdrawals flow Trading → Basic.
func (t *Transfer) Validate(direction TransferDirection) error {
	switch direction {
	case TransferDirectionDeposit:
		if t.FromAccountKind != AccountKindBasic || t.ToAccountKind != AccountKindTrading {
			return errors.New("deposit must flow from basic account to trading account")
		}
	case TransferDirectionWithdrawal:
		if t.FromAccountKind != AccountKindTrading || t.ToAccountKind != AccountKindBasic {
			return errors.New("withdrawal must flow from trading account to basic account")
		}
	default:
		return errors.New("unknown transfer direction")
	}
	return nil
}
