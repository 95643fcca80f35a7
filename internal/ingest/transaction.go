package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Transaction kinds the ingester acts on. Anything else is ignored and
// logged; the set of variants is closed on purpose.
const (
	TxKindBuyAssets   = "BUY_ASSETS"
	TxKindCancelOffer = "CANCEL_OFFER"
	TxKindOfferAssets = "OFFER_ASSETS"
	TxKindRunScript   = "RUN_SCRIPT"
	TxKindSendAssets  = "SEND_ASSETS"
)

var (
	ErrMalformedBlockBody  = errors.New("malformed block body")
	ErrMalformedTxBody     = errors.New("malformed transaction body")
	ErrMissingTxKind       = errors.New("transaction body carries no type")
	ErrEmptyOfferedAssets  = errors.New("OFFER_ASSETS carries no asset identifiers")
	ErrOfferNotFoundOnNode = errors.New("referenced offer not found on ledger")
)

type blockBody struct {
	Transactions []transactionEnvelope `json:"transactions"`
}

// transactionEnvelope is a transaction as it appears inside a block body:
// either with an inline decoded body or with the body as a JSON string.
type transactionEnvelope struct {
	BodyIn json.RawMessage `json:"bodyIn"`
	Body   string          `json:"body"`
}

func decodeBlockBody(raw []byte) (*blockBody, error) {
	var body blockBody
	err := json.Unmarshal(raw, &body)
	if err != nil {
		return nil, errors.Join(ErrMalformedBlockBody, err)
	}

	return &body, nil
}

// Transaction is the closed tagged variant over transaction bodies. Exactly
// one variant pointer is set for the known kinds; an unknown kind leaves all
// of them nil.
type Transaction struct {
	Kind string

	BuyAssets   *BuyAssetsBody
	CancelOffer *CancelOfferBody
	OfferAssets *OfferAssetsBody
	RunScript   *RunScriptBody
	SendAssets  *SendAssetsBody
}

// Known reports whether the kind is one the ingester dispatches on.
func (t *Transaction) Known() bool {
	return t.BuyAssets != nil || t.CancelOffer != nil || t.OfferAssets != nil || t.RunScript != nil || t.SendAssets != nil
}

type BuyAssetsBody struct {
	OfferID string `json:"offerID"`
}

type CancelOfferBody struct {
	Identifier string `json:"identifier"`
}

type OfferAssetsBody struct {
	AssetIdentifiers []string `json:"assetIdentifiers"`
}

type ScriptInvocation struct {
	AssetParams map[string]json.RawMessage `json:"assetParams"`
}

type RunScriptBody struct {
	Invocations []ScriptInvocation `json:"invocations"`
}

type SendAssetsBody struct {
	AssetIdentifiers []string `json:"assetIdentifiers"`
}

func decodeTransaction(env transactionEnvelope) (*Transaction, error) {
	raw := env.BodyIn
	if len(raw) == 0 {
		raw = []byte(env.Body)
	}

	var kindProbe struct {
		Type string `json:"type"`
	}
	err := json.Unmarshal(raw, &kindProbe)
	if err != nil {
		return nil, errors.Join(ErrMalformedTxBody, err)
	}
	if kindProbe.Type == "" {
		return nil, ErrMissingTxKind
	}

	tx := &Transaction{Kind: kindProbe.Type}

	var variant any
	switch kindProbe.Type {
	case TxKindBuyAssets:
		tx.BuyAssets = &BuyAssetsBody{}
		variant = tx.BuyAssets
	case TxKindCancelOffer:
		tx.CancelOffer = &CancelOfferBody{}
		variant = tx.CancelOffer
	case TxKindOfferAssets:
		tx.OfferAssets = &OfferAssetsBody{}
		variant = tx.OfferAssets
	case TxKindRunScript:
		tx.RunScript = &RunScriptBody{}
		variant = tx.RunScript
	case TxKindSendAssets:
		tx.SendAssets = &SendAssetsBody{}
		variant = tx.SendAssets
	default:
		return tx, nil
	}

	err = json.Unmarshal(raw, variant)
	if err != nil {
		return nil, errors.Join(ErrMalformedTxBody, fmt.Errorf("kind %s", kindProbe.Type), err)
	}

	return tx, nil
}

// TouchedAssets returns the asset IDs a RUN_SCRIPT or SEND_ASSETS transaction
// references.
func (t *Transaction) TouchedAssets() []string {
	switch t.Kind {
	case TxKindRunScript:
		var ids []string
		for _, invocation := range t.RunScript.Invocations {
			for assetID := range invocation.AssetParams {
				ids = append(ids, assetID)
			}
		}
		return ids
	case TxKindSendAssets:
		return t.SendAssets.AssetIdentifiers
	}

	return nil
}
