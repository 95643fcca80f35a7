package store

import "encoding/json"

// Close reasons recorded on offers.
const (
	CloseReasonCompleted = "COMPLETED"
	CloseReasonCancelled = "CANCELLED"
)

type Block struct {
	Height   uint64
	TxCount  uint64
	Block    []byte
	Found    bool
	Ingested bool
}

// Nonces is the persisted logical clock: origin advances when an offer's
// content becomes known, closed advances when an offer is closed.
type Nonces struct {
	Origin uint64
	Closed uint64
}

type OfferAsset struct {
	AssetID string `json:"assetID"`
	Type    string `json:"type"`
}

type Offer struct {
	OfferID      string       `json:"offerID"`
	SellerIndex  *int64       `json:"sellerIndex"`
	Assets       []OfferAsset `json:"assets"`
	MinimumPrice uint64       `json:"minimumPrice"`
	Expiration   string       `json:"expiration"`
	OriginNonce  uint64       `json:"-"`
	ClosedNonce  uint64       `json:"-"`
	Closed       *string      `json:"closed,omitempty"`
}

// Known reports whether the offer's content has been affirmed. Rows created
// by a close-before-affirm arrive empty and stay unknown until OFFER_ASSETS
// for them is ingested.
func (o *Offer) Known() bool {
	return o.OriginNonce > 0
}

// Asset tracks ownership and the stamp interval of a single on-ledger asset.
// The pair (StampOn, StampOff) is a half-open height interval: the asset is
// currently a stamp iff StampOff < StampOn, and was a stamp at snapshot
// height S iff StampOn < S and (StampOff < StampOn or S <= StampOff).
type Asset struct {
	AssetID  string          `json:"assetID"`
	Owner    *int64          `json:"owner"`
	Height   uint64          `json:"height"`
	StampOn  uint64          `json:"stampOn"`
	StampOff uint64          `json:"stampOff"`
	Asset    json.RawMessage `json:"asset,omitempty"`
	Stamp    json.RawMessage `json:"stamp,omitempty"`
}

func (a *Asset) IsStamp() bool {
	return a.StampOff < a.StampOn
}

// WasStampAt reports stamp status at snapshot height s.
func (a *Asset) WasStampAt(s uint64) bool {
	return a.StampOn < s && (a.StampOff < a.StampOn || s <= a.StampOff)
}

type OfferSearch struct {
	All           bool
	Base          int
	Count         int
	ExcludeSeller *int64
	MatchSeller   *int64
	Token         *SearchToken // nil starts a new search
}

type OfferSearchResult struct {
	Offers []*Offer
	Token  SearchToken
	// Total is only set when the search was started without a token. It is
	// computed under the snapshot filter, so it stays valid for the session.
	Total *int64
}

type StampSearch struct {
	Base         int
	Count        int
	ExcludeOwner *int64
	MatchOwner   *int64
	Token        *StampToken
}

type StampSearchResult struct {
	Stamps []*Asset
	Token  StampToken
	Total  *int64
}

type Stats struct {
	BlocksTotal    int64
	BlocksFound    int64
	BlocksIngested int64
	OpenOffers     int64
	Stamps         int64
}
