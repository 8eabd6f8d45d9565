package domain

import "time"

// Transfer is a native-currency transfer between two externally owned accounts.
type Transfer struct {
	TxHash               string    `json:"tx_hash"`
	BlockNumber          int64     `json:"block_number"`
	Timestamp            time.Time `json:"timestamp"`
	FromAddress          string    `json:"from_address"`
	ToAddress            string    `json:"to_address"`
	Value                int64     `json:"value"`
	GasPrice             *int64    `json:"gas_price"`
	Gas                  *int64    `json:"gas"`
	MaxFeePerGas         *int64    `json:"max_fee_per_gas"`
	MaxPriorityFeePerGas *int64    `json:"max_priority_fee_per_gas"`
}
