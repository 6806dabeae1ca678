package domain

// BundleKind identifies which pass produced a bundle.
type BundleKind string

const (
	BundleProtocolOrder BundleKind = "protocol_order"
	BundleApproveAction BundleKind = "approve_action"
	BundleGasRefund     BundleKind = "gas_refund"
	BundleSingle        BundleKind = "single"
)

// BundleKinds lists every kind in pass order.
var BundleKinds = []BundleKind{BundleProtocolOrder, BundleApproveAction, BundleGasRefund, BundleSingle}

// FlowDirection classifies a bundle's net value from the wallet's side.
type FlowDirection string

const (
	FlowIncrease FlowDirection = "increase"
	FlowDecrease FlowDirection = "decrease"
	FlowOverhead FlowDirection = "overhead"
)

// TransactionBundle groups transactions that form one user action.
type TransactionBundle struct {
	ID          string        `json:"id"`
	Kind        BundleKind    `json:"kind"`
	Primary     Transaction   `json:"primary"`
	Related     []Transaction `json:"related"`
	Name        string        `json:"name"`
	NetValueUSD float64       `json:"net_value_usd"`
	Flow        FlowDirection `json:"flow"`
}

// Transactions returns the primary followed by the related transactions.
func (b TransactionBundle) Transactions() []Transaction {
	out := make([]Transaction, 0, 1+len(b.Related))
	out = append(out, b.Primary)
	return append(out, b.Related...)
}
