package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBlockBody(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		body, err := decodeBlockBody([]byte(`{"transactions":[{"bodyIn":{"type":"SEND_ASSETS"}},{"body":"{\"type\":\"BUY_ASSETS\"}"}]}`))
		require.NoError(t, err)
		assert.Len(t, body.Transactions, 2)
	})

	t.Run("empty", func(t *testing.T) {
		body, err := decodeBlockBody([]byte(`{}`))
		require.NoError(t, err)
		assert.Empty(t, body.Transactions)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := decodeBlockBody([]byte(`not json`))
		require.ErrorIs(t, err, ErrMalformedBlockBody)
	})
}

func TestDecodeTransaction(t *testing.T) {
	tt := []struct {
		name      string
		envelope  transactionEnvelope
		expectErr error
		check     func(t *testing.T, tx *Transaction)
	}{
		{
			name:     "buy assets from inline body",
			envelope: transactionEnvelope{BodyIn: []byte(`{"type":"BUY_ASSETS","offerID":"offer-1"}`)},
			check: func(t *testing.T, tx *Transaction) {
				assert.Equal(t, TxKindBuyAssets, tx.Kind)
				require.NotNil(t, tx.BuyAssets)
				assert.Equal(t, "offer-1", tx.BuyAssets.OfferID)
				assert.True(t, tx.Known())
			},
		},
		{
			name:     "cancel offer from string body",
			envelope: transactionEnvelope{Body: `{"type":"CANCEL_OFFER","identifier":"asset-7"}`},
			check: func(t *testing.T, tx *Transaction) {
				assert.Equal(t, TxKindCancelOffer, tx.Kind)
				require.NotNil(t, tx.CancelOffer)
				assert.Equal(t, "asset-7", tx.CancelOffer.Identifier)
			},
		},
		{
			name:     "inline body wins over string body",
			envelope: transactionEnvelope{BodyIn: []byte(`{"type":"SEND_ASSETS","assetIdentifiers":["a"]}`), Body: `{"type":"BUY_ASSETS"}`},
			check: func(t *testing.T, tx *Transaction) {
				assert.Equal(t, TxKindSendAssets, tx.Kind)
			},
		},
		{
			name:     "offer assets",
			envelope: transactionEnvelope{BodyIn: []byte(`{"type":"OFFER_ASSETS","assetIdentifiers":["asset-1","asset-2"]}`)},
			check: func(t *testing.T, tx *Transaction) {
				require.NotNil(t, tx.OfferAssets)
				assert.Equal(t, []string{"asset-1", "asset-2"}, tx.OfferAssets.AssetIdentifiers)
			},
		},
		{
			name:     "run script",
			envelope: transactionEnvelope{BodyIn: []byte(`{"type":"RUN_SCRIPT","invocations":[{"assetParams":{"asset-1":{},"asset-2":{}}}]}`)},
			check: func(t *testing.T, tx *Transaction) {
				require.NotNil(t, tx.RunScript)
				assert.ElementsMatch(t, []string{"asset-1", "asset-2"}, tx.TouchedAssets())
			},
		},
		{
			name:     "send assets",
			envelope: transactionEnvelope{BodyIn: []byte(`{"type":"SEND_ASSETS","assetIdentifiers":["asset-1"]}`)},
			check: func(t *testing.T, tx *Transaction) {
				assert.Equal(t, []string{"asset-1"}, tx.TouchedAssets())
			},
		},
		{
			name:     "unknown kind decodes but stays unknown",
			envelope: transactionEnvelope{BodyIn: []byte(`{"type":"MINT_ASSET","assetID":"asset-1"}`)},
			check: func(t *testing.T, tx *Transaction) {
				assert.Equal(t, "MINT_ASSET", tx.Kind)
				assert.False(t, tx.Known())
				assert.Empty(t, tx.TouchedAssets())
			},
		},
		{
			name:      "missing type",
			envelope:  transactionEnvelope{BodyIn: []byte(`{"offerID":"offer-1"}`)},
			expectErr: ErrMissingTxKind,
		},
		{
			name:      "malformed body",
			envelope:  transactionEnvelope{Body: `not json`},
			expectErr: ErrMalformedTxBody,
		},
		{
			name:      "variant type mismatch",
			envelope:  transactionEnvelope{BodyIn: []byte(`{"type":"SEND_ASSETS","assetIdentifiers":"not-a-list"}`)},
			expectErr: ErrMalformedTxBody,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			tx, err := decodeTransaction(tc.envelope)

			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, tx)
		})
	}
}
