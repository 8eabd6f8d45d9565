package streaming

import (
	"encoding/json"
	"testing"
	"time"

	"transferindex/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValidates(t *testing.T) {
	_, err := Encode(Message{TxHash: "0xaa"})
	require.Error(t, err)

	_, err = Encode(Message{Type: MessageTypeTransfer})
	require.Error(t, err)
}

func TestDecodeValidates(t *testing.T) {
	_, err := Decode([]byte(`{"tx_hash":"0xaa"}`))
	require.Error(t, err)

	_, err = Decode([]byte(`{"type":"transfer"}`))
	require.Error(t, err)

	_, err = Decode([]byte(`{`))
	require.Error(t, err)
}

func TestTransferPayload(t *testing.T) {
	gas := int64(21000)
	transfer := domain.Transfer{
		TxHash:      "0xaa",
		BlockNumber: 19000000,
		Timestamp:   time.Unix(1710000000, 0).UTC(),
		FromAddress: "0x11",
		ToAddress:   "0x22",
		Value:       100000000000000000,
		Gas:         &gas,
	}

	payload, err := Encode(FromTransfer(transfer))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(payload, &fields))
	assert.Equal(t, "transfer", fields["type"])
	assert.Equal(t, float64(1710000000), fields["timestamp"])
	assert.Equal(t, "0x16345785d8a0000", fields["value_hex"])
	assert.NotContains(t, fields, "gas_price")
	assert.Contains(t, fields, "gas")

	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, transfer, decoded.Transfer())
}
