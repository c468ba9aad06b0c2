package domain

import (
	"strconv"
	"time"
)

// UserTransaction is one user-level transaction row. MarketID and Outcome
// start out NULL and are derived from PositionID by the backfill job; once
// set they are never cleared.
type UserTransaction struct {
	TxID        string
	UserAddress string
	PositionID  *int64
	MarketID    *string
	Outcome     *int16
	Amount      float64
	TxTimestamp time.Time
	CreatedAt   time.Time
}

// PositionMarketID extracts the parent market identifier encoded in a
// position ID: the market ID is the upper bits, i.e. positionID / 2,
// rendered as a decimal string.
func PositionMarketID(positionID int64) string {
	return strconv.FormatInt(positionID/2, 10)
}

// PositionOutcome extracts the outcome index encoded in the low bit of a
// position ID: 0 or 1.
func PositionOutcome(positionID int64) int16 {
	return int16(positionID % 2)
}
