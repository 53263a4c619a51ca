package payment

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	initiatePath = "/v1/payments/initiate"
	checkPath    = "/v1/payments/check-payment"
)

// PesepayConfig holds the merchant keys and callback URLs.
type PesepayConfig struct {
	IntegrationKey string
	EncryptionKey  string
	BaseURL        string
	// ResultURL receives server-to-server notifications; ReturnURL is where the donor lands.
	ResultURL string
	ReturnURL string
}

// PesepayClient implements Gateway against the Pesepay REST API.
// Request and response bodies are AES-256-CBC encrypted with the merchant key.
type PesepayClient struct {
	cfg  PesepayConfig
	http *http.Client
}

// NewPesepayClient fails with ErrNotConfigured when either key is missing.
func NewPesepayClient(cfg PesepayConfig, client *http.Client) (*PesepayClient, error) {
	if cfg.IntegrationKey == "" || cfg.EncryptionKey == "" {
		return nil, ErrNotConfigured
	}
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("pesepay: encryption key must be 32 bytes, got %d", len(cfg.EncryptionKey))
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PesepayClient{cfg: cfg, http: client}, nil
}

// CreateTransaction validates and builds a transaction. It does not contact the gateway.
func (c *PesepayClient) CreateTransaction(amount float64, currency, reason string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultReason
	}
	return Transaction{
		Amount:            amount,
		Currency:          currency,
		Reason:            reason,
		MerchantReference: uuid.NewString(),
	}, nil
}

type amountDetails struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
}

type initiateBody struct {
	AmountDetails     amountDetails `json:"amountDetails"`
	MerchantReference string        `json:"merchantReference,omitempty"`
	ReasonForPayment  string        `json:"reasonForPayment"`
	ResultURL         string        `json:"resultUrl"`
	ReturnURL         string        `json:"returnUrl"`
}

type envelope struct {
	Payload string `json:"payload"`
}

// InitiateTransaction registers tx and returns where to send the donor.
func (c *PesepayClient) InitiateTransaction(ctx context.Context, tx Transaction) (*Initiated, error) {
	body := initiateBody{
		AmountDetails:     amountDetails{Amount: tx.Amount, CurrencyCode: tx.Currency},
		MerchantReference: tx.MerchantReference,
		ReasonForPayment:  tx.Reason,
		ResultURL:         c.cfg.ResultURL,
		ReturnURL:         c.cfg.ReturnURL,
	}
	plain, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	sealed, err := encrypt([]byte(c.cfg.EncryptionKey), plain)
	if err != nil {
		return nil, err
	}
	reqBody, _ := json.Marshal(envelope{Payload: sealed})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+initiatePath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	var out Initiated
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.ReferenceNumber == "" || out.RedirectURL == "" {
		return nil, fmt.Errorf("%w: incomplete initiate response", ErrGatewayRefused)
	}
	return &out, nil
}

// CheckPaymentStatus asks the gateway for the current state of a transaction.
func (c *PesepayClient) CheckPaymentStatus(ctx context.Context, referenceNumber string) (*Status, error) {
	u := c.cfg.BaseURL + checkPath + "?referenceNumber=" + url.QueryEscape(referenceNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out Status
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.ReferenceNumber == "" {
		out.ReferenceNumber = referenceNumber
	}
	return &out, nil
}

func (c *PesepayClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", c.cfg.IntegrationKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &msg)
		return fmt.Errorf("%w: %s %s", ErrGatewayRefused, resp.Status, msg.Message)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("pesepay: decode response: %w", err)
	}
	plain, err := decrypt([]byte(c.cfg.EncryptionKey), env.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(plain, out)
}

// encrypt is AES-256-CBC with PKCS#7 padding. The IV is the first 16 bytes of the key.
func encrypt(key, plain []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	buf := make([]byte, len(plain)+pad)
	copy(buf, plain)
	for i := len(plain); i < len(buf); i++ {
		buf[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(block, key[:aes.BlockSize]).CryptBlocks(buf, buf)
	return base64.StdEncoding.EncodeToString(buf), nil
}

func decrypt(key []byte, sealed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("pesepay: payload is not base64: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("pesepay: payload length %d is not a block multiple", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	cipher.NewCBCDecrypter(block, key[:aes.BlockSize]).CryptBlocks(data, data)
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("pesepay: bad padding")
	}
	return data[:len(data)-pad], nil
}
