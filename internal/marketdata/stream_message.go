package marketdata

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ctreader/internal/domain"
	"ctreader/internal/ports"
)

// wsKlineMsg is the kline stream message envelope. Only the fields the chart needs are kept.
type wsKlineMsg struct {
	EventType string `json:"e"`
	Kline     *struct {
		OpenTime int64       `json:"t"`
		Open     flexDecimal `json:"o"`
		High     flexDecimal `json:"h"`
		Low      flexDecimal `json:"l"`
		Close    flexDecimal `json:"c"`
		Volume   flexDecimal `json:"v"`
	} `json:"k"`
}

// flexDecimal accepts a decimal encoded either as a JSON string or a bare JSON number.
type flexDecimal string

func (d *flexDecimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = flexDecimal(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = flexDecimal(n.String())
	return nil
}

// DecodeStreamKline extracts the raw kline from one stream message.
// Messages without a "k" object are reported as ports.ErrDecode.
func DecodeStreamKline(msg []byte) (domain.RawKline, error) {
	var m wsKlineMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return domain.RawKline{}, fmt.Errorf("%w: %v", ports.ErrDecode, err)
	}
	if m.Kline == nil {
		return domain.RawKline{}, fmt.Errorf("%w: message has no kline payload (event %q)", ports.ErrDecode, m.EventType)
	}
	k := m.Kline
	return domain.RawKline{
		OpenTimeMs: k.OpenTime,
		Open:       string(k.Open),
		High:       string(k.High),
		Low:        string(k.Low),
		Close:      string(k.Close),
		Volume:     string(k.Volume),
	}, nil
}
