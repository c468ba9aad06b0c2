package gamma

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether a flag is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APIMarket represents a market as returned by the Gamma API. Array-valued
// fields (outcomes, prices, token IDs) arrive as JSON-encoded strings, e.g.
// "[\"0.4\",\"0.6\"]", and are decoded during conversion.
type APIMarket struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	Slug            string   `json:"slug"`
	Active          flexBool `json:"active"`
	Closed          bool     `json:"closed"`
	Archived        bool     `json:"archived"`
	AcceptingOrders flexBool `json:"acceptingOrders"`
	Outcomes        string   `json:"outcomes"`
	OutcomePrices   string   `json:"outcomePrices"`
	ClobTokenIDs    string   `json:"clobTokenIds"`
	Volume          string   `json:"volume"`
	Liquidity       string   `json:"liquidity"`
	UMAResolution   string   `json:"umaResolutionStatus"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
}

// WSCommand is the JSON payload sent to the WebSocket to subscribe or
// unsubscribe.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// BookMessage is a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceChangeMessage is an incremental price-level update.
type PriceChangeMessage struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

// BookTop extracts the best bid and best ask from a book snapshot. ok is
// false when either side is empty or unparsable.
func BookTop(b *BookMessage) (bestBid, bestAsk float64, ok bool) {
	for _, lvl := range b.Bids {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		if p > bestBid {
			bestBid = p
		}
	}
	for _, lvl := range b.Asks {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		if bestAsk == 0 || p < bestAsk {
			bestAsk = p
		}
	}
	if bestBid <= 0 || bestAsk <= 0 {
		return 0, 0, false
	}
	return bestBid, bestAsk, true
}

// EventTime parses the millisecond epoch (or RFC3339) timestamps the
// WebSocket attaches to messages, falling back to now.
func EventTime(raw string) time.Time {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Now()
}

// ToRecord converts a Gamma APIMarket into a validated domain.MarketRecord.
// It returns an error wrapping domain.ErrMalformedRecord when a required
// field is missing or unparsable; callers skip and count such records rather
// than aborting the page.
func (m *APIMarket) ToRecord() (domain.MarketRecord, error) {
	if m.ID == "" {
		return domain.MarketRecord{}, fmt.Errorf("%w: missing market id", domain.ErrMalformedRecord)
	}

	rec := domain.MarketRecord{
		MarketID:        m.ID,
		Title:           m.Question,
		AcceptingOrders: bool(m.AcceptingOrders),
	}
	if rec.Title == "" {
		rec.Title = "Unknown"
	}

	switch {
	case m.Archived:
		rec.Status = domain.MarketStatusArchived
	case strings.EqualFold(m.UMAResolution, "resolved"):
		rec.Status = domain.MarketStatusResolved
	case m.Closed:
		rec.Status = domain.MarketStatusClosed
	default:
		rec.Status = domain.MarketStatusActive
	}

	var err error
	if rec.Volume, err = parseNonNegative(m.Volume); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("%w: market %s: volume: %v", domain.ErrMalformedRecord, m.ID, err)
	}
	if rec.Liquidity, err = parseNonNegative(m.Liquidity); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("%w: market %s: liquidity: %v", domain.ErrMalformedRecord, m.ID, err)
	}

	prices, err := decodeStringArray(m.OutcomePrices)
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("%w: market %s: outcomePrices: %v", domain.ErrMalformedRecord, m.ID, err)
	}
	rec.OutcomePrices = make([]float64, 0, len(prices))
	for _, raw := range prices {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(p) || p < 0 || p > 1 {
			return domain.MarketRecord{}, fmt.Errorf("%w: market %s: outcome price %q out of [0,1]", domain.ErrMalformedRecord, m.ID, raw)
		}
		rec.OutcomePrices = append(rec.OutcomePrices, p)
	}

	if rec.ClobTokenIDs, err = decodeStringArray(m.ClobTokenIDs); err != nil {
		return domain.MarketRecord{}, fmt.Errorf("%w: market %s: clobTokenIds: %v", domain.ErrMalformedRecord, m.ID, err)
	}

	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}

	return rec, nil
}

// decodeStringArray decodes Gamma's JSON-encoded string arrays
// ("[\"a\",\"b\"]"). An empty or absent field decodes to nil.
func decodeStringArray(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseNonNegative parses a numeric string, treating empty as zero and
// rejecting negatives and NaN.
func parseNonNegative(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || v < 0 {
		return 0, fmt.Errorf("negative or NaN value %q", raw)
	}
	return v, nil
}
