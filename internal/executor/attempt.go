package executor

import (
	"fmt"
	"sync"
	"time"

	"okxbot/internal/types"

	"github.com/shopspring/decimal"
)

// Phase 是单次开仓尝试的状态。
type Phase string

const (
	PhaseNew            Phase = "NEW"
	PhaseEntrySubmitted Phase = "ENTRY_SUBMITTED"
	PhaseEntryFilled    Phase = "ENTRY_FILLED"
	PhaseTPAttached     Phase = "TP_ATTACHED"
	PhaseSLAttached     Phase = "SL_ATTACHED"
	PhaseActive         Phase = "ACTIVE"
	PhaseFailed         Phase = "FAILED"
)

var transitions = map[Phase][]Phase{
	PhaseNew:            {PhaseEntrySubmitted},
	PhaseEntrySubmitted: {PhaseEntryFilled},
	PhaseEntryFilled:    {PhaseTPAttached, PhaseSLAttached, PhaseActive},
	PhaseTPAttached:     {PhaseSLAttached, PhaseActive},
	PhaseSLAttached:     {PhaseActive},
}

// Attempt 跟踪一次开仓从下单到 ACTIVE 的全过程，只存在于内存中。
type Attempt struct {
	Key           types.PositionKey
	Side          types.Side
	Kind          types.OrderKind
	Size          decimal.Decimal
	ClientOrderID string
	OrderID       string
	EnterPrice    decimal.Decimal
	TPPrice       *decimal.Decimal
	TPOrderID     string
	SLPrice       *decimal.Decimal
	SLOrderID     string
	Phase         Phase
	Err           error
	Raw           []byte

	leverage    int
	balance     decimal.Decimal
	release     func()
	releaseOnce sync.Once
}

func (a *Attempt) canAdvance(to Phase) bool {
	if to == PhaseFailed {
		return a.Phase != PhaseFailed && a.Phase != PhaseActive
	}
	for _, next := range transitions[a.Phase] {
		if next == to {
			return true
		}
	}
	return false
}

func (a *Attempt) advance(to Phase) error {
	if !a.canAdvance(to) {
		return fmt.Errorf("attempt %s: illegal transition %s -> %s", a.Key, a.Phase, to)
	}
	a.Phase = to
	return nil
}

func (a *Attempt) fail(err error) {
	if a.canAdvance(PhaseFailed) {
		a.Phase = PhaseFailed
	}
	a.Err = err
	a.Release()
}

// Release 释放该 key 的进程内占位，可重复调用。Record 成功后会自动释放。
func (a *Attempt) Release() {
	a.releaseOnce.Do(func() {
		if a.release != nil {
			a.release()
		}
	})
}

// Record 将尝试结果转换为开仓记录。
func (a *Attempt) Record(leverage int, balance decimal.Decimal, openTime time.Time) types.TradeRecord {
	return types.TradeRecord{
		OrderID:        a.OrderID,
		ClientOrderID:  a.ClientOrderID,
		Instrument:     a.Key.Instrument,
		Timeframe:      a.Key.Timeframe,
		Strategy:       a.Key.Strategy,
		Side:           a.Side,
		Kind:           a.Kind,
		Leverage:       leverage,
		Size:           a.Size,
		EnterPrice:     a.EnterPrice,
		TPPrice:        a.TPPrice,
		TPOrderID:      a.TPOrderID,
		SLPrice:        a.SLPrice,
		SLOrderID:      a.SLOrderID,
		BalanceAtEntry: balance,
		OpenTime:       openTime,
		Status:         types.TradeOpen,
	}
}
