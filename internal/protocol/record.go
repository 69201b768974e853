package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultCurrency applies to bare numeric prices and records without a currency.
const DefaultCurrency = "BRL"

// Price is one entry of a record's price list. On the wire it is either a bare
// number or an object {value, currency, raw}. Entries without a numeric value
// are kept so they survive a round trip, but Numeric reports false for them.
type Price struct {
	Value    float64
	Currency string
	Raw      string

	numeric  bool
	bare     bool
	original json.RawMessage
}

// NewPrice returns a bare numeric price in the default currency.
func NewPrice(value float64) Price {
	return Price{Value: value, numeric: true, bare: true}
}

// NewPriceIn returns an object-shaped price with an explicit currency.
func NewPriceIn(value float64, currency string) Price {
	return Price{Value: value, Currency: currency, numeric: true}
}

func (p Price) Numeric() bool { return p.numeric }

// CurrencyCode returns the price currency, falling back to DefaultCurrency.
func (p Price) CurrencyCode() string {
	if p.Currency == "" {
		return DefaultCurrency
	}
	return p.Currency
}

// Text returns the agent's own rendering of a price: Raw when present, or the
// string a non-numeric entry held on the wire.
func (p Price) Text() string {
	if p.Raw != "" {
		return p.Raw
	}
	var text string
	if !p.numeric && p.original != nil && json.Unmarshal(p.original, &text) == nil {
		return text
	}
	return ""
}

type priceObject struct {
	Value    *float64 `json:"value"`
	Currency string   `json:"currency,omitempty"`
	Raw      string   `json:"raw,omitempty"`
}

func (p *Price) UnmarshalJSON(data []byte) error {
	*p = Price{original: append(json.RawMessage(nil), data...)}
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var number float64
	if err := json.Unmarshal(trimmed, &number); err == nil {
		p.Value = number
		p.numeric = true
		p.bare = true
		return nil
	}

	// Fields are read one by one so a badly typed currency or raw does not
	// cost the amount. The original bytes still round-trip.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil
	}
	var value float64
	if raw, ok := obj["value"]; !ok || json.Unmarshal(raw, &value) != nil {
		return nil
	}
	p.Value = value
	p.numeric = true
	if raw, ok := obj["currency"]; ok {
		json.Unmarshal(raw, &p.Currency)
	}
	if raw, ok := obj["raw"]; ok {
		json.Unmarshal(raw, &p.Raw)
	}
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	if p.original != nil {
		return p.original, nil
	}
	if !p.numeric {
		return []byte("null"), nil
	}
	if p.bare {
		return json.Marshal(p.Value)
	}
	value := p.Value
	return json.Marshal(priceObject{Value: &value, Currency: p.Currency, Raw: p.Raw})
}

// Record is one bundle of agent findings. Keys the client does not know about
// are kept in Extra and written back out unchanged.
type Record struct {
	URL          string
	Title        string
	Timestamp    string
	Prices       []Price
	AveragePrice *float64
	Currency     string
	ProductNames []string
	Extra        map[string]json.RawMessage
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	*r = Record{}
	for key, raw := range fields {
		if r.decodeKnown(key, raw) {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[key] = raw
	}
	return nil
}

// decodeKnown fills the typed field for key. A known key holding a value of
// an unexpected type reports false so the caller keeps it opaque.
func (r *Record) decodeKnown(key string, raw json.RawMessage) bool {
	switch key {
	case "url":
		return decodeField(raw, &r.URL)
	case "title":
		return decodeField(raw, &r.Title)
	case "timestamp":
		return decodeField(raw, &r.Timestamp)
	case "prices":
		return decodeField(raw, &r.Prices)
	case "average_price":
		return decodeField(raw, &r.AveragePrice)
	case "currency":
		return decodeField(raw, &r.Currency)
	case "product_names":
		return decodeField(raw, &r.ProductNames)
	default:
		return false
	}
}

func decodeField[T any](raw json.RawMessage, dst *T) bool {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return false
	}
	*dst = value
	return true
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+7)
	for key, raw := range r.Extra {
		out[key] = raw
	}
	if r.URL != "" {
		out["url"] = r.URL
	}
	if r.Title != "" {
		out["title"] = r.Title
	}
	if r.Timestamp != "" {
		out["timestamp"] = r.Timestamp
	}
	if r.Prices != nil {
		out["prices"] = r.Prices
	}
	if r.AveragePrice != nil {
		out["average_price"] = *r.AveragePrice
	}
	if r.Currency != "" {
		out["currency"] = r.Currency
	}
	if r.ProductNames != nil {
		out["product_names"] = r.ProductNames
	}
	return json.Marshal(out)
}
