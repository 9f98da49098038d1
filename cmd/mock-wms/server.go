package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/table"
)

// Inbound receipt statuses, in lifecycle order.
const (
	ibNew        = "NEW"
	ibProcessing = "PROCESSING"
	ibFinished   = "FINISHED"
	ibCancelled  = "CANCELLED"
)

// Outbound order statuses, in lifecycle order.
const (
	obNew         = "NEW"
	obReadyToPick = "READYTOPICK"
	obPicking     = "PICKING"
	obPicked      = "PICKED"
	obPacking     = "PACKING"
	obPacked      = "PACKED"
	obCancelled   = "CANCELLED"
)

var obStatusOrder = []string{obNew, obReadyToPick, obPicking, obPicked, obPacking, obPacked}

type ibLine struct {
	LineID      string `json:"line_id"`
	ProductID   int    `json:"product_id"`
	SKU         string `json:"sku"`
	QtyUnitID   int    `json:"qty_unit_id"`
	ExpectedQty int    `json:"expected_qty"`
	ActualQty   int    `json:"actual_qty"`
}

type ibReceipt struct {
	ID           string    `json:"id"`
	POCode       string    `json:"po_code"`
	PODate       string    `json:"po_date"`
	Status       string    `json:"status"`
	Note         *string   `json:"note"`
	ProcessedBy  *string   `json:"processed_by"`
	ContactName  *string   `json:"contact_name"`
	ContactPhone *string   `json:"contact_phone"`
	ClientID     int       `json:"client_id"`
	WarehouseID  int       `json:"warehouse_id"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    string    `json:"created_at"`
	UpdatedBy    string    `json:"updated_by"`
	UpdatedAt    string    `json:"updated_at"`
	FinishedAt   *string   `json:"finished_at"`
	Lines        []*ibLine `json:"lines"`
}

func (r *ibReceipt) sortKey() (string, string) { return r.UpdatedAt, r.ID }

type obLine struct {
	LineID    string `json:"line_id"`
	ProductID int    `json:"product_id"`
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
}

type obOrder struct {
	ID                   string    `json:"id"`
	SOCode               string    `json:"so_code"`
	ExpectedDeliveryDate string    `json:"expected_delivery_date"`
	ActualDeliveryDate   *string   `json:"actual_delivery_date"`
	CustomerID           int       `json:"customer_id"`
	ShippingAddressID    int       `json:"shipping_address_id"`
	TotalAmount          float64   `json:"total_amount"`
	ActualAmount         float64   `json:"actual_amount"`
	Note                 *string   `json:"note"`
	ClientID             int       `json:"client_id"`
	WarehouseID          int       `json:"warehouse_id"`
	Status               string    `json:"status"`
	TotalCODAmount       float64   `json:"total_cod_amount"`
	TotalWeight          float64   `json:"total_weight"`
	TotalVolume          float64   `json:"total_volume"`
	CreatedBy            string    `json:"created_by"`
	CreatedAt            string    `json:"created_at"`
	UpdatedBy            string    `json:"updated_by"`
	UpdatedAt            string    `json:"updated_at"`
	Lines                []*obLine `json:"lines"`
}

func (o *obOrder) sortKey() (string, string) { return o.UpdatedAt, o.ID }

type server struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time

	ib []*ibReceipt
	ob []*obOrder
}

func newServer(seed int64) *server {
	s := &server{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
	s.seedData()
	return s
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ib/receipts", s.handleIBReceipts)
	mux.HandleFunc("GET /ob/orders", s.handleOBOrders)
	mux.HandleFunc("POST /simulate/tick", s.handleSimulateTick)
	return mux
}

func iso(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

func ptr(s string) *string { return &s }

func (s *server) pick(options ...*string) *string {
	return options[s.rng.Intn(len(options))]
}

func (s *server) seedData() {
	baseTime := s.now().UTC().Add(-6 * time.Hour)

	for i := 0; i < 3000; i++ {
		t := baseTime.Add(time.Duration(i*5) * time.Minute)
		status := ibNew
		if s.rng.Intn(2) == 1 {
			status = ibProcessing
		}
		s.ib = append(s.ib, &ibReceipt{
			ID:           uuid.NewString(),
			POCode:       fmt.Sprintf("PO%d", 20250000+i),
			PODate:       t.Format("2006-01-02"),
			Status:       status,
			Note:         s.pick(nil, ptr("urgent"), ptr("check qty")),
			ProcessedBy:  s.pick(nil, ptr("wms_user_a"), ptr("wms_user_b")),
			ContactName:  s.pick(nil, ptr("NCC A"), ptr("NCC B")),
			ContactPhone: s.pick(nil, ptr("0900000001"), ptr("0900000002")),
			ClientID:     1,
			WarehouseID:  101,
			CreatedBy:    "system",
			CreatedAt:    iso(t),
			UpdatedBy:    "system",
			UpdatedAt:    iso(t),
			Lines: []*ibLine{
				{LineID: uuid.NewString(), ProductID: 1001, SKU: "SKU-1001", QtyUnitID: 1, ExpectedQty: 5 + s.rng.Intn(26)},
				{LineID: uuid.NewString(), ProductID: 1002, SKU: "SKU-1002", QtyUnitID: 1, ExpectedQty: 5 + s.rng.Intn(26)},
			},
		})
	}

	for i := 0; i < 3000; i++ {
		t := baseTime.Add(time.Duration(i*4) * time.Minute)
		status := obNew
		if s.rng.Intn(2) == 1 {
			status = obReadyToPick
		}
		s.ob = append(s.ob, &obOrder{
			ID:                   uuid.NewString(),
			SOCode:               fmt.Sprintf("SO%d", 20250000+i),
			ExpectedDeliveryDate: t.Format("2006-01-02"),
			CustomerID:           2000 + s.rng.Intn(11),
			ShippingAddressID:    3000 + s.rng.Intn(11),
			TotalAmount:          float64(200000 + s.rng.Intn(1800001)),
			ActualAmount:         0,
			Note:                 s.pick(nil, ptr("fragile"), ptr("COD")),
			ClientID:             1,
			WarehouseID:          101,
			Status:               status,
			TotalCODAmount:       0,
			TotalWeight:          roundTo(0.5+s.rng.Float64()*29.5, 2),
			TotalVolume:          roundTo(0.01+s.rng.Float64()*1.49, 3),
			CreatedBy:            "system",
			CreatedAt:            iso(t),
			UpdatedBy:            "system",
			UpdatedAt:            iso(t),
			Lines: []*obLine{
				{LineID: uuid.NewString(), ProductID: 1001, SKU: "SKU-1001", Qty: 1 + s.rng.Intn(5)},
				{LineID: uuid.NewString(), ProductID: 1003, SKU: "SKU-1003", Qty: 1 + s.rng.Intn(5)},
			},
		})
	}
}

func roundTo(v float64, places int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return f
}

type listQuery struct {
	updatedAfter *time.Time
	limit        int
	offset       int
}

func parseListQuery(r *http.Request) (listQuery, error) {
	q := listQuery{limit: 100}
	values := r.URL.Query()

	if raw := values.Get("updated_after"); raw != "" {
		t, err := table.ParseInstant(raw)
		if err != nil {
			return q, fmt.Errorf("invalid updated_after %q", raw)
		}
		q.updatedAfter = &t
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return q, fmt.Errorf("limit must be an integer in [1, 500]")
		}
		q.limit = n
	}
	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, fmt.Errorf("offset must be a non-negative integer")
		}
		q.offset = n
	}
	return q, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; nothing left to do for this response.
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"time_utc": iso(s.now()),
	})
}

// writeList applies the shared list semantics: stable (updated_at, id)
// order, strict updated_after filter, then offset/limit over the
// filtered set. meta.count is the filtered total, not the page size.
func writeList(w http.ResponseWriter, q listQuery, items []listItem) {
	sort.Slice(items, func(i, j int) bool {
		ui, idi := items[i].sortKey()
		uj, idj := items[j].sortKey()
		if ui != uj {
			return ui < uj
		}
		return idi < idj
	})

	if q.updatedAfter != nil {
		filtered := items[:0]
		for _, it := range items {
			u, _ := it.sortKey()
			t, err := table.ParseInstant(u)
			if err == nil && t.After(*q.updatedAfter) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	count := len(items)
	start := q.offset
	if start > count {
		start = count
	}
	end := start + q.limit
	if end > count {
		end = count
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": items[start:end],
		"meta": map[string]int{"limit": q.limit, "offset": q.offset, "count": count},
	})
}

type listItem interface {
	sortKey() (updatedAt, id string)
}

func (s *server) handleIBReceipts(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]listItem, len(s.ib))
	for i, x := range s.ib {
		items[i] = x
	}
	writeList(w, q, items)
}

func (s *server) handleOBOrders(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]listItem, len(s.ob))
	for i, x := range s.ob {
		items[i] = x
	}
	writeList(w, q, items)
}

func ibNextStatus(status string) string {
	switch status {
	case ibCancelled:
		return ibCancelled
	case ibNew:
		return ibProcessing
	case ibProcessing:
		return ibFinished
	}
	return ibFinished
}

func obNextStatus(status string) string {
	if status == obCancelled {
		return obCancelled
	}
	for i, st := range obStatusOrder {
		if st == status {
			if i+1 < len(obStatusOrder) {
				return obStatusOrder[i+1]
			}
			return st
		}
	}
	return status
}

const cancelProbability = 0.05

func (s *server) handleSimulateTick(w http.ResponseWriter, r *http.Request) {
	nChanges := 10
	if raw := r.URL.Query().Get("n_changes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "n_changes must be an integer in [1, 200]")
			return
		}
		nChanges = n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()

	for _, i := range s.rng.Perm(len(s.ib))[:min(nChanges, len(s.ib))] {
		s.tickIBReceipt(s.ib[i], t)
	}
	for _, i := range s.rng.Perm(len(s.ob))[:min(nChanges, len(s.ob))] {
		s.tickOBOrder(s.ob[i], t)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"changed":  nChanges,
		"time_utc": iso(t),
	})
}

func (s *server) tickIBReceipt(x *ibReceipt, t time.Time) {
	if x.Status == ibCancelled || x.Status == ibFinished {
		return
	}
	if x.Status == ibNew && s.rng.Float64() < cancelProbability {
		x.Status = ibCancelled
		x.UpdatedAt = iso(t)
		x.UpdatedBy = "simulator"
		return
	}

	next := ibNextStatus(x.Status)
	x.Status = next
	x.UpdatedAt = iso(t)
	x.UpdatedBy = "simulator"

	switch next {
	case ibProcessing:
		for _, ln := range x.Lines {
			if ln.ActualQty < ln.ExpectedQty {
				ln.ActualQty = min(ln.ExpectedQty, ln.ActualQty+1+s.rng.Intn(5))
			}
		}
	case ibFinished:
		for _, ln := range x.Lines {
			ln.ActualQty = ln.ExpectedQty
		}
		x.FinishedAt = ptr(iso(t))
	}
}

func (s *server) tickOBOrder(x *obOrder, t time.Time) {
	if x.Status == obCancelled || x.Status == obPacked {
		return
	}
	if s.rng.Float64() < cancelProbability {
		x.Status = obCancelled
		x.UpdatedAt = iso(t)
		x.UpdatedBy = "simulator"
		return
	}

	next := obNextStatus(x.Status)
	x.Status = next
	x.UpdatedAt = iso(t)
	x.UpdatedBy = "simulator"

	if next == obPacked {
		x.ActualAmount = x.TotalAmount
		x.ActualDeliveryDate = ptr(t.UTC().Format("2006-01-02"))
	}
}
