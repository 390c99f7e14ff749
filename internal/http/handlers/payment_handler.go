// README: Payment handlers: upfront and balance charges, history and PDF receipts.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolride/internal/modules/payment"
)

type PaymentHandler struct {
	payments *payment.Service
}

func NewPaymentHandler(svc *payment.Service) *PaymentHandler {
	return &PaymentHandler{payments: svc}
}

type chargeReq struct {
	Customer payment.Customer `json:"customer"`
}

// PayUpfront opens the booking's transaction and charges its upfront share.
// A declined charge answers 402 with the failed transaction in the body.
func (h *PaymentHandler) PayUpfront(c *gin.Context) {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req chargeReq
	if !bindJSON(c, &req) {
		return
	}
	tx, err := h.payments.CreateForBooking(c.Request.Context(), payment.CreateCommand{
		BookingID: bookingID,
		ParentID:  callerID(c),
		Customer:  req.Customer,
	})
	if err != nil {
		writeChargeError(c, tx, err)
		return
	}
	writeJSON(c, http.StatusCreated, tx)
}

func (h *PaymentHandler) PayBalance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req chargeReq
	if !bindJSON(c, &req) {
		return
	}
	tx, err := h.payments.PayBalance(c.Request.Context(), payment.BalanceCommand{
		TransactionID: id,
		ParentID:      callerID(c),
		Customer:      req.Customer,
	})
	if err != nil {
		writeChargeError(c, tx, err)
		return
	}
	writeJSON(c, http.StatusOK, tx)
}

func writeChargeError(c *gin.Context, tx *payment.Transaction, err error) {
	if errors.Is(err, payment.ErrPaymentFailed) && tx != nil {
		writeJSON(c, http.StatusPaymentRequired, map[string]any{"error": err.Error(), "transaction": tx})
		return
	}
	writePaymentError(c, err)
}

func (h *PaymentHandler) List(c *gin.Context) {
	list, err := h.payments.ListByParent(c.Request.Context(), callerID(c))
	if err != nil {
		writePaymentError(c, err)
		return
	}
	if list == nil {
		list = []payment.Transaction{}
	}
	writeJSON(c, http.StatusOK, list)
}

func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tx, err := h.payments.GetFor(c.Request.Context(), id, callerID(c))
	if err != nil {
		writePaymentError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tx)
}

func (h *PaymentHandler) Receipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pdf, err := h.payments.Receipt(c.Request.Context(), id, callerID(c))
	if err != nil {
		writePaymentError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=receipt-"+string(id)+".pdf")
	c.Data(http.StatusOK, "application/pdf", pdf)
}
