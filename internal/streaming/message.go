package streaming

import (
	"encoding/json"
	"errors"
	"time"

	"transferindex/internal/domain"
	"transferindex/internal/hexcodec"
)

type MessageType string

const (
	MessageTypeTransfer MessageType = "transfer"
)

// Message is the JSON payload published for every newly stored transfer.
type Message struct {
	Type                 MessageType `json:"type"`
	TraceID              string      `json:"trace_id,omitempty"`
	TxHash               string      `json:"tx_hash"`
	BlockNumber          int64       `json:"block_number"`
	Timestamp            int64       `json:"timestamp"`
	From                 string      `json:"from"`
	To                   string      `json:"to"`
	Value                int64       `json:"value"`
	ValueHex             string      `json:"value_hex"`
	GasPrice             *int64      `json:"gas_price,omitempty"`
	Gas                  *int64      `json:"gas,omitempty"`
	MaxFeePerGas         *int64      `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas *int64      `json:"max_priority_fee_per_gas,omitempty"`
}

func FromTransfer(t domain.Transfer) Message {
	return Message{
		Type:                 MessageTypeTransfer,
		TxHash:               t.TxHash,
		BlockNumber:          t.BlockNumber,
		Timestamp:            t.Timestamp.Unix(),
		From:                 t.FromAddress,
		To:                   t.ToAddress,
		Value:                t.Value,
		ValueHex:             hexcodec.Encode(uint64(t.Value)),
		GasPrice:             t.GasPrice,
		Gas:                  t.Gas,
		MaxFeePerGas:         t.MaxFeePerGas,
		MaxPriorityFeePerGas: t.MaxPriorityFeePerGas,
	}
}

func (m Message) Transfer() domain.Transfer {
	return domain.Transfer{
		TxHash:               m.TxHash,
		BlockNumber:          m.BlockNumber,
		Timestamp:            time.Unix(m.Timestamp, 0).UTC(),
		FromAddress:          m.From,
		ToAddress:            m.To,
		Value:                m.Value,
		GasPrice:             m.GasPrice,
		Gas:                  m.Gas,
		MaxFeePerGas:         m.MaxFeePerGas,
		MaxPriorityFeePerGas: m.MaxPriorityFeePerGas,
	}
}

func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("message type is required")
	}
	if msg.TxHash == "" {
		return nil, errors.New("tx_hash is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message type is missing")
	}
	if msg.TxHash == "" {
		return Message{}, errors.New("tx_hash is missing")
	}
	return msg, nil
}
