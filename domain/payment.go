package domain

import "time"

// PaymentMethod is how the customer settles a booking.
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodUPI    PaymentMethod = "upi"
	MethodWallet PaymentMethod = "wallet"
	MethodCOD    PaymentMethod = "cod"
)

// PaymentStatus is the state of one settlement attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is one settlement attempt against a booking. At most one completed
// payment exists per booking; a completed record is immutable.
type Payment struct {
	ID            string        `json:"id" bson:"_id,omitempty"`
	BookingID     string        `json:"bookingId" bson:"bookingId"`
	CustomerID    string        `json:"customerId" bson:"customerId"`
	Amount        int64         `json:"amount" bson:"amount"`
	Method        PaymentMethod `json:"method" bson:"method"`
	Status        PaymentStatus `json:"status" bson:"status"`
	TransactionID string        `json:"transactionId" bson:"transactionId"`
	CreatedAt     time.Time     `json:"createdAt" bson:"createdAt"`
}

// CardDetails is the input for a card payment.
type CardDetails struct {
	Number     string `json:"cardNumber"`
	Expiry     string `json:"expiryDate"` // MM/YY
	CVV        string `json:"cvv"`
	HolderName string `json:"cardName"`
}

// UPIDetails is the input for a UPI payment.
type UPIDetails struct {
	UPIID string `json:"upiId"`
}

// WalletDetails is the input for a wallet payment.
type WalletDetails struct {
	WalletType   string `json:"walletType"`
	WalletNumber string `json:"walletNumber"`
}

// MethodDetails carries the method-specific input of a payment request. Only
// the member matching the method is consulted.
type MethodDetails struct {
	Card   *CardDetails   `json:"card,omitempty"`
	UPI    *UPIDetails    `json:"upi,omitempty"`
	Wallet *WalletDetails `json:"wallet,omitempty"`
}
