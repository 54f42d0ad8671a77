// =================================
// File: internal/positions/types.go
// =================================
package positions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Side of a leveraged position.
type Side string

const (
	SideLong  Side = "Long"
	SideShort Side = "Short"
)

// Leverage is kept as the display value sent by the API ("20X", 5, "cross").
type Leverage string

func (l *Leverage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Leverage(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("leverage: %w", err)
	}
	*l = Leverage(n.String())
	return nil
}

// Position is a read-only snapshot of one open perp position.
type Position struct {
	Side             Side     `json:"side"`
	Address          string   `json:"address"`
	AddressLabel     string   `json:"address_label,omitempty"`
	PositionValueUSD float64  `json:"position_value_usd"`
	UpnlUSD          float64  `json:"upnl_usd"`
	EntryPrice       float64  `json:"entry_price"`
	MarkPrice        float64  `json:"mark_price"`
	Leverage         Leverage `json:"leverage"`
	LiquidationPrice float64  `json:"liquidation_price"`
}

// Result is the outcome of fetching a single token. It is either a success
// carrying positions or a failure carrying the error; never both.
type Result struct {
	Token     string
	Positions []Position
	Err       error
}

// Succeeded builds a success result.
func Succeeded(token string, ps []Position) Result {
	if ps == nil {
		ps = []Position{}
	}
	return Result{Token: token, Positions: ps}
}

// Failed builds a failure result. A nil err is replaced by a generic error so
// the result can never be mistaken for a success.
func Failed(token string, err error) Result {
	if err == nil {
		err = errors.New("unknown error")
	}
	return Result{Token: token, Err: err}
}

func (r Result) OK() bool { return r.Err == nil }

// Longs counts long positions.
func (r Result) Longs() int { return r.count(SideLong) }

// Shorts counts short positions.
func (r Result) Shorts() int { return r.count(SideShort) }

func (r Result) count(side Side) int {
	n := 0
	for _, p := range r.Positions {
		if p.Side == side {
			n++
		}
	}
	return n
}

// Aggregate holds one Result per configured token, in configured order.
// The order drives thread ordering downstream.
type Aggregate []Result

// Get returns the result for token.
func (a Aggregate) Get(token string) (Result, bool) {
	for _, r := range a {
		if r.Token == token {
			return r, true
		}
	}
	return Result{}, false
}

func (a Aggregate) Tokens() []string {
	tokens := make([]string, 0, len(a))
	for _, r := range a {
		tokens = append(tokens, r.Token)
	}
	return tokens
}

// Succeeded returns the successful results in order.
func (a Aggregate) Succeeded() []Result {
	var out []Result
	for _, r := range a {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the failed results in order.
func (a Aggregate) Failed() []Result {
	var out []Result
	for _, r := range a {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// tokenPayload is the per-token JSON shape shared with the fetch/format
// scripts: {"data": [...]} or {"data": [], "error": "..."}.
type tokenPayload struct {
	Data  []Position `json:"data"`
	Error string     `json:"error,omitempty"`
}

// MarshalJSON writes the aggregate as a JSON object keyed by token, keeping
// the configured order.
func (a Aggregate) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.Token)
		if err != nil {
			return nil, err
		}
		payload := tokenPayload{Data: r.Positions}
		if !r.OK() {
			payload = tokenPayload{Data: []Position{}, Error: r.Err.Error()}
		}
		if payload.Data == nil {
			payload.Data = []Position{}
		}
		value, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the keyed object produced by MarshalJSON, preserving
// key order.
func (a *Aggregate) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("aggregate: expected JSON object")
	}

	var out Aggregate
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		token, ok := tok.(string)
		if !ok {
			return fmt.Errorf("aggregate: unexpected key %v", tok)
		}
		var payload tokenPayload
		if err := dec.Decode(&payload); err != nil {
			return fmt.Errorf("aggregate: decode %s: %w", token, err)
		}
		token = strings.ToUpper(strings.TrimSpace(token))
		if payload.Error != "" {
			out = append(out, Failed(token, errors.New(payload.Error)))
			continue
		}
		out = append(out, Succeeded(token, payload.Data))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}
