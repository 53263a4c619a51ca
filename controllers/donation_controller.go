package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novojourney/novo/events"
	"github.com/novojourney/novo/models"
	"github.com/novojourney/novo/payment"
	"github.com/novojourney/novo/store"
)

// DonationController fronts the payment gateway for the donate page. Its
// responses are plain JSON objects the donate page reads directly, not the
// {code, message, data} envelope.
type DonationController struct {
	gateway   payment.Gateway
	donations *store.DonationStore
	publisher events.Publisher
	logger    *zap.Logger
}

// NewDonationController creates a DonationController. gateway may be nil when
// no keys are configured; initiate then fails with 500.
func NewDonationController(gateway payment.Gateway, donations *store.DonationStore, publisher events.Publisher, logger *zap.Logger) *DonationController {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DonationController{gateway: gateway, donations: donations, publisher: publisher, logger: logger}
}

// Initiate starts a USD transaction and returns where to send the donor.
func (d *DonationController) Initiate(ctx *gin.Context) {
	body := map[string]interface{}{}
	_ = ctx.ShouldBindJSON(&body)

	amount, err := payment.ParseAmount(body["amount"])
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}
	reason, _ := body["reason"].(string)
	if strings.TrimSpace(reason) == "" {
		reason = payment.DefaultReason
	}

	if d.gateway == nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": payment.ErrNotConfigured.Error()})
		return
	}
	tx, err := d.gateway.CreateTransaction(amount, payment.Currency, reason)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	res, err := d.gateway.InitiateTransaction(ctx.Request.Context(), tx)
	if err != nil {
		d.logger.Warn("pesepay initiate failed", zap.Float64("amount", amount), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := d.donations.Record(ctx.Request.Context(), &models.Donation{
		ReferenceNumber: res.ReferenceNumber,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		Reason:          tx.Reason,
		RedirectURL:     res.RedirectURL,
		CreatedAt:       time.Now(),
	}); err != nil {
		d.logger.Warn("donation record failed", zap.String("reference", res.ReferenceNumber), zap.Error(err))
	}
	if err := d.publisher.Publish(ctx.Request.Context(), events.New(events.TypeDonationStarted, "", map[string]string{
		"reference": res.ReferenceNumber,
		"currency":  tx.Currency,
	})); err != nil {
		d.logger.Warn("publish donation.initiated failed", zap.Error(err))
	}

	ctx.JSON(http.StatusOK, gin.H{
		"redirectUrl":     res.RedirectURL,
		"referenceNumber": res.ReferenceNumber,
	})
}

// Result receives the gateway's server-to-server callback. It always answers 200.
func (d *DonationController) Result(ctx *gin.Context) {
	body := map[string]interface{}{}
	_ = ctx.ShouldBindJSON(&body)

	ref := firstString(body, "referenceNumber", "reference", "ref")
	if ref == "" || d.gateway == nil {
		ctx.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}

	st, err := d.gateway.CheckPaymentStatus(ctx.Request.Context(), ref)
	if err != nil {
		d.logger.Warn("pesepay status check failed", zap.String("reference", ref), zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}

	status := st.TransactionStatus
	if st.Paid {
		status = store.DonationPaid
	}
	if err := d.donations.UpdateStatus(ctx.Request.Context(), ref, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.logger.Info("status reported for unknown donation", zap.String("reference", ref))
		} else {
			d.logger.Warn("donation status update failed", zap.String("reference", ref), zap.Error(err))
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true, "status": st})
}

func firstString(body map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := body[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
