// Package payment talks to the Pesepay payment gateway for donations.
package payment

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNotConfigured  = errors.New("payment gateway keys are not configured")
	ErrGatewayRefused = errors.New("payment gateway rejected the request")
)

const (
	// DefaultReason is used when the donor leaves the reason empty.
	DefaultReason = "Donation"
	// Currency is the only currency donations are taken in.
	Currency = "USD"
)

// Transaction is a payment about to be initiated.
type Transaction struct {
	Amount            float64
	Currency          string
	Reason            string
	MerchantReference string
}

// Initiated is the gateway's answer to an initiate call.
type Initiated struct {
	ReferenceNumber string `json:"referenceNumber"`
	RedirectURL     string `json:"redirectUrl"`
	PollURL         string `json:"pollUrl,omitempty"`
}

// Status is the gateway's view of a transaction.
type Status struct {
	ReferenceNumber   string `json:"referenceNumber"`
	TransactionStatus string `json:"transactionStatus"`
	Paid              bool   `json:"paid"`
}

// Gateway is a donation payment provider.
type Gateway interface {
	CreateTransaction(amount float64, currency, reason string) (Transaction, error)
	InitiateTransaction(ctx context.Context, tx Transaction) (*Initiated, error)
	CheckPaymentStatus(ctx context.Context, referenceNumber string) (*Status, error)
}

// ParseAmount accepts a JSON number or numeric string and returns it when it is
// finite and positive.
func ParseAmount(v interface{}) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		f = parsed
	default:
		return 0, ErrInvalidAmount
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, ErrInvalidAmount
	}
	return f, nil
}
