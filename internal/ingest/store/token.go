package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Snapshot tokens pin a pagination session to a fixed point in logical time.
// They are encoded as base64 over a JSON array, the wire format clients
// already hold, and must round-trip losslessly.

var ErrInvalidToken = errors.New("invalid pagination token")

// SearchToken anchors an offer search: offers affirmed after Origin never
// appear, offers closed after Closed are still included, and offers expiring
// before BaseUTC are hidden from non-"all" views.
type SearchToken struct {
	BaseUTC string
	Origin  uint64
	Closed  uint64
}

// NewSearchToken snapshots the current wall clock (truncated to the second)
// and the given nonce pair.
func NewSearchToken(now time.Time, nonces Nonces) SearchToken {
	return SearchToken{
		BaseUTC: now.UTC().Truncate(time.Second).Format(time.RFC3339),
		Origin:  nonces.Origin,
		Closed:  nonces.Closed,
	}
}

func (t SearchToken) Encode() string {
	raw, _ := json.Marshal([]any{t.BaseUTC, t.Origin, t.Closed})
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodeSearchToken(encoded string) (SearchToken, error) {
	fields, err := decodeTokenFields(encoded, 3)
	if err != nil {
		return SearchToken{}, err
	}

	token := SearchToken{}
	err = errors.Join(
		unmarshalField(fields[0], &token.BaseUTC),
		unmarshalField(fields[1], &token.Origin),
		unmarshalField(fields[2], &token.Closed),
	)
	if err != nil {
		return SearchToken{}, errors.Join(ErrInvalidToken, err)
	}

	return token, nil
}

// StampToken anchors a stamp search to a block-height ceiling instead of the
// nonce pair.
type StampToken struct {
	BaseUTC string
	Height  uint64
}

func NewStampToken(now time.Time, height uint64) StampToken {
	return StampToken{
		BaseUTC: now.UTC().Truncate(time.Second).Format(time.RFC3339),
		Height:  height,
	}
}

func (t StampToken) Encode() string {
	raw, _ := json.Marshal([]any{t.BaseUTC, t.Height})
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodeStampToken(encoded string) (StampToken, error) {
	fields, err := decodeTokenFields(encoded, 2)
	if err != nil {
		return StampToken{}, err
	}

	token := StampToken{}
	err = errors.Join(
		unmarshalField(fields[0], &token.BaseUTC),
		unmarshalField(fields[1], &token.Height),
	)
	if err != nil {
		return StampToken{}, errors.Join(ErrInvalidToken, err)
	}

	return token, nil
}

func decodeTokenFields(encoded string, arity int) ([]json.RawMessage, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	var fields []json.RawMessage
	err = json.Unmarshal(raw, &fields)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if len(fields) != arity {
		return nil, errors.Join(ErrInvalidToken, fmt.Errorf("expected %d fields, got %d", arity, len(fields)))
	}

	return fields, nil
}

func unmarshalField(raw json.RawMessage, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(target)
}
