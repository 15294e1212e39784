package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"telephone-billing/internal/bills"
	"telephone-billing/internal/calls"
	"telephone-billing/internal/phone"
	"telephone-billing/internal/records"
	"telephone-billing/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Records *records.Service
	Bills   *bills.Registry
	Ready   []Pinger
	Now     func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Records ---

type recordRequest struct {
	Type        string    `json:"type" form:"type" binding:"required,oneof=start end"`
	CallID      int64     `json:"call_id" form:"call_id" binding:"required,gt=0"`
	Timestamp   time.Time `json:"timestamp" form:"timestamp" binding:"required"`
	Source      string    `json:"source" form:"source" binding:"required_if=Type start"`
	Destination string    `json:"destination" form:"destination" binding:"required_if=Type start"`
}

type recordResponse struct {
	Type        calls.RecordType `json:"type"`
	CallID      int64            `json:"call_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Source      string           `json:"source,omitempty"`
	Destination string           `json:"destination,omitempty"`
}

// CreateRecord accepts a start or end call record as JSON or form data.
func (h Handlers) CreateRecord(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBind(&req); err != nil {
		writeBindError(c, err)
		return
	}
	logger.Annotate(c, "call_id", req.CallID, "record_type", req.Type)

	rec, err := h.Records.Submit(c.Request.Context(), records.Submission{
		Type:        calls.RecordType(req.Type),
		CallID:      req.CallID,
		Timestamp:   req.Timestamp,
		Source:      req.Source,
		Destination: req.Destination,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := recordResponse{Type: rec.Type, CallID: rec.CallID, Timestamp: rec.Timestamp}
	if rec.Type == calls.RecordTypeStart {
		resp.Source, resp.Destination = rec.Source, rec.Destination
	}
	c.JSON(http.StatusCreated, resp)
}

// --- Bills ---

type billCallRecord struct {
	Destination   string `json:"destination"`
	CallStartDate string `json:"call_start_date"`
	CallStartTime string `json:"call_start_time"`
	CallDuration  string `json:"call_duration"`
	CallPrice     string `json:"call_price"`
}

type billResponse struct {
	Subscriber      string           `json:"subscriber"`
	ReferencePeriod string           `json:"reference_period"`
	BillCallRecords []billCallRecord `json:"bill_call_records"`
}

// GetBill lists the subscriber's calls for a closed month
// (?reference=MM/YYYY, default last month).
func (h Handlers) GetBill(c *gin.Context) {
	subscriber := c.Param("subscriber")
	if err := phone.ValidateField("subscriber", subscriber); err != nil {
		writeError(c, err)
		return
	}

	loc := h.Bills.Location()
	period, err := bills.ResolvePeriod(c.Query("reference"), h.now(), loc)
	if err != nil {
		if errors.Is(err, bills.ErrPeriodFormat) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": bills.PeriodFormatMessage})
			return
		}
		writeError(c, err)
		return
	}

	logger.Annotate(c, "reference", period.String())

	list, err := h.Bills.List(c.Request.Context(), subscriber, period)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := billResponse{
		Subscriber:      subscriber,
		ReferencePeriod: period.String(),
		BillCallRecords: make([]billCallRecord, 0, len(list)),
	}
	for _, b := range list {
		start := b.Start.In(loc)
		resp.BillCallRecords = append(resp.BillCallRecords, billCallRecord{
			Destination:   b.Call.Destination,
			CallStartDate: start.Format("2006-01-02"),
			CallStartTime: start.Format("15:04:05"),
			CallDuration:  b.Duration(),
			CallPrice:     FormatPrice(b.Price),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// --- Health ---

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	for _, p := range h.Ready {
		if err := p.Ping(ctx); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// FormatPrice renders an amount the way bills print it: "R$ 0,81".
func FormatPrice(d decimal.Decimal) string {
	return "R$ " + strings.Replace(d.StringFixed(2), ".", ",", 1)
}
