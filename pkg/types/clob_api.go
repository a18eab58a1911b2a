package types

// OrderSubmissionResponse is the response from POST /order.
type OrderSubmissionResponse struct {
	Success      bool     `json:"success"`
	ErrorMsg     string   `json:"errorMsg"`
	OrderID      string   `json:"orderId"` // lowercase 'd' on POST
	OrderHashes  []string `json:"orderHashes"`
	Status       string   `json:"status"` // matched, live, delayed, unmatched
	TakingAmount string   `json:"takingAmount"`
	MakingAmount string   `json:"makingAmount"`
}

// SignedOrderJSON is a signed order in the shape the CLOB expects.
type SignedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Side          string `json:"side"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"` // 0=EOA, 1=POLY_PROXY, 2=GNOSIS_SAFE
	Signature     string `json:"signature"`
}

// OrderSubmissionRequest wraps a signed order with owner and order type.
type OrderSubmissionRequest struct {
	Order     SignedOrderJSON `json:"order"`
	Owner     string          `json:"owner"`     // API key, not the maker address
	OrderType string          `json:"orderType"` // GTC, FOK, GTD, FAK
}

// OrderQueryResponse is the response from GET /data/order/{id}.
type OrderQueryResponse struct {
	OrderID    string  `json:"id"`
	Status     string  `json:"status"`
	TokenID    string  `json:"asset_id"`
	Price      float64 `json:"price,string"`
	Size       float64 `json:"original_size,string"`
	SizeFilled float64 `json:"size_matched,string"`
	Side       string  `json:"side"`
	OrderType  string  `json:"order_type"`
	MarketID   string  `json:"market"`
	Outcome    string  `json:"outcome"`
}

// CancelRequest is the body of DELETE /orders.
type CancelRequest struct {
	OrderIDs []string `json:"orderIDs"`
}

// CancelResponse is the response from DELETE /orders and DELETE /cancel-all.
type CancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}
