package ethrpc

// Block is the subset of an eth_getBlockByNumber result the indexer reads.
// Quantities are kept as the hex strings the node returned.
type Block struct {
	Number       string        `json:"number"`
	Hash         string        `json:"hash"`
	Timestamp    string        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction is a full transaction object as embedded in a block. Missing
// or null fields decode to the empty string.
type Transaction struct {
	Hash                 string `json:"hash"`
	BlockNumber          string `json:"blockNumber"`
	TransactionIndex     string `json:"transactionIndex"`
	From                 string `json:"from"`
	To                   string `json:"to"`
	Value                string `json:"value"`
	Gas                  string `json:"gas"`
	GasPrice             string `json:"gasPrice"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	Type                 string `json:"type"`
}
