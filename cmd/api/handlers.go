package main

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcclellann/milkrun/pkg/ledger"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/shopspring/decimal"
)

// listBillsHandler brings the month's bills up to date, then lists them.
func (s *Server) listBillsHandler(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(r)
	if !ok {
		badRequest(w, "month parameter is required (YYYY-MM)")
		return
	}
	customerID, ok := queryID(r, "customer_id")
	if !ok {
		badRequest(w, "Invalid customer ID")
		return
	}
	status := models.BillStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		badRequest(w, "Invalid bill status")
		return
	}

	result, err := s.ledger.GenerateBills(r.Context(), period)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := result.Err(); err != nil {
		s.log.Warn().Err(err).Str("month", period.String()).Msg("Some bills could not be generated")
	}

	bills, err := s.ledger.ListBills(r.Context(), models.BillFilter{
		Period:     &period,
		CustomerID: customerID,
		Status:     status,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

func (s *Server) generateBillsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Month models.Period `json:"month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := s.ledger.GenerateBills(r.Context(), req.Month)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) billDetailsHandler(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(r)
	if !ok {
		badRequest(w, "Invalid bill ID")
		return
	}
	details, err := s.ledger.BillDetails(r.Context(), billID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) postPaymentHandler(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(r)
	if !ok {
		badRequest(w, "Invalid bill ID")
		return
	}

	var req struct {
		Amount        decimal.Decimal      `json:"amount"`
		PaymentMethod models.PaymentMethod `json:"payment_method"`
		Notes         string               `json:"notes"`
		PaymentDate   string               `json:"payment_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	payment := ledger.PaymentRequest{
		BillID: billID,
		Amount: req.Amount,
		Method: req.PaymentMethod,
		Notes:  req.Notes,
	}
	if req.PaymentDate != "" {
		date, err := models.ParseDate(req.PaymentDate)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		payment.Date = date
	}

	recorded, bill, err := s.ledger.PostPayment(r.Context(), payment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": recorded, "bill": bill})
}

func (s *Server) markBillSentHandler(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(r)
	if !ok {
		badRequest(w, "Invalid bill ID")
		return
	}
	bill, err := s.ledger.MarkBillSent(r.Context(), billID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) deliverySheetHandler(w http.ResponseWriter, r *http.Request) {
	date, err := models.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, "date parameter is required (YYYY-MM-DD)")
		return
	}
	rows, err := s.ledger.DeliverySheet(r.Context(), date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) recordDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date       string `json:"date"`
		Deliveries []struct {
			CustomerID uuid.UUID             `json:"customer_id"`
			Quantity   decimal.Decimal       `json:"quantity"`
			Status     models.DeliveryStatus `json:"status"`
		} `json:"deliveries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	entries := make([]ledger.DeliveryEntry, 0, len(req.Deliveries))
	for _, d := range req.Deliveries {
		entries = append(entries, ledger.DeliveryEntry{CustomerID: d.CustomerID, Quantity: d.Quantity, Status: d.Status})
	}

	result, err := s.ledger.RecordDeliveries(r.Context(), date, entries)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type customerRequest struct {
	Name               string           `json:"name"`
	Phone              string           `json:"phone"`
	Address            string           `json:"address"`
	RatePerLiter       *decimal.Decimal `json:"rate_per_liter"`
	DefaultQuantity    *decimal.Decimal `json:"default_quantity"`
	OutstandingBalance decimal.Decimal  `json:"outstanding_balance"`
}

func (c customerRequest) input() ledger.CustomerInput {
	return ledger.CustomerInput{
		Name:            c.Name,
		Phone:           c.Phone,
		Address:         c.Address,
		RatePerLiter:    c.RatePerLiter,
		DefaultQuantity: c.DefaultQuantity,
		OpeningBalance:  c.OutstandingBalance,
	}
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	customers, err := s.ledger.ListCustomers(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	customer, err := s.ledger.CreateCustomer(r.Context(), req.input())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(r)
	if !ok {
		badRequest(w, "Invalid customer ID")
		return
	}
	customer, err := s.ledger.GetCustomer(r.Context(), customerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(r)
	if !ok {
		badRequest(w, "Invalid customer ID")
		return
	}
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	customer, err := s.ledger.UpdateCustomer(r.Context(), customerID, req.input())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (s *Server) deleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(r)
	if !ok {
		badRequest(w, "Invalid customer ID")
		return
	}
	if err := s.ledger.DeactivateCustomer(r.Context(), customerID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reorderCustomersHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerIDs []uuid.UUID `json:"customer_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid customer IDs provided")
		return
	}
	if err := s.ledger.ReorderCustomers(r.Context(), req.CustomerIDs); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) paymentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := queryID(r, "customer_id")
	if !ok {
		badRequest(w, "Invalid customer ID")
		return
	}
	billID, ok := queryID(r, "bill_id")
	if !ok {
		badRequest(w, "Invalid bill ID")
		return
	}
	payments, err := s.ledger.PaymentHistory(r.Context(), models.PaymentFilter{CustomerID: customerID, BillID: billID})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) reportsHandler(w http.ResponseWriter, r *http.Request) {
	period, ok := queryPeriod(r)
	if !ok {
		badRequest(w, "month parameter is required (YYYY-MM)")
		return
	}
	customerID, ok := queryID(r, "customer_id")
	if !ok {
		badRequest(w, "Invalid customer ID")
		return
	}
	report, err := s.ledger.MonthlyReport(r.Context(), period, customerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.ledger.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) updateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DefaultRate decimal.Decimal `json:"default_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	update, err := s.ledger.UpdateDefaultRate(r.Context(), req.DefaultRate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}
