package models

// OCOOrder is a one-cancels-the-other exit bracket placed after an entry
// fill when the venue cannot attach stop-loss/take-profit to market orders.
type OCOOrder struct {
	OrderListID       int64   `json:"orderListId"`
	ListStatusType    string  `json:"listStatusType"`
	ListOrderStatus   string  `json:"listOrderStatus"`
	ListClientOrderID string  `json:"listClientOrderId"`
	TransactionTime   int64   `json:"transactionTime"`
	Symbol            string  `json:"symbol"`
	StopPrice         float64 `json:"stopPrice"`
	LimitPrice        float64 `json:"limitPrice"`
}
