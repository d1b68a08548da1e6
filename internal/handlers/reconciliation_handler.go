package handler

import (
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	service "charter-reconciliation-backend/internal/services/reconciliation"
)

// ReconciliationHandler exposes the reconciliation core over HTTP. Previewed
// runs are held in-process and keyed by run id: apply only accepts a run this
// process previewed, which is the defense against blind applies.
type ReconciliationHandler struct {
	service *service.Service

	mu   sync.Mutex
	runs map[uuid.UUID]*service.Run
}

func NewReconciliationHandler(svc *service.Service) *ReconciliationHandler {
	return &ReconciliationHandler{
		service: svc,
		runs:    make(map[uuid.UUID]*service.Run),
	}
}

// UploadFeed ingests a bank-feed CSV: date, amount, description,
// source_account, channel, counterparty. Rows that fail to parse are reported
// back; rows missing identity fields are quarantined by the importer.
func (h *ReconciliationHandler) UploadFeed(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	defer file.Close()

	sourceAccount := c.PostForm("source_account")

	reader := csv.NewReader(file)
	var rows []service.FeedRow
	var parseErrors []string
	first := true
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if first {
			first = false
			if len(rec) > 0 && rec[0] == "date" {
				continue // header row
			}
		}
		if len(rec) < 5 {
			parseErrors = append(parseErrors, "short row skipped")
			continue
		}

		date, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			parseErrors = append(parseErrors, "bad date: "+rec[0])
			continue
		}
		amount, err := decimal.NewFromString(rec[1])
		if err != nil {
			parseErrors = append(parseErrors, "bad amount: "+rec[1])
			continue
		}
		row := service.FeedRow{
			Date:          date,
			Amount:        amount,
			Description:   rec[2],
			SourceAccount: rec[3],
			Channel:       rec[4],
		}
		if row.SourceAccount == "" {
			row.SourceAccount = sourceAccount
		}
		if len(rec) > 5 {
			row.Counterparty = rec[5]
		}
		rows = append(rows, row)
	}

	batch, err := h.service.CreateBatch(header.Filename, sourceAccount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	result, err := h.service.ImportFeed(batch, rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id":     batch.ID,
		"result":       result,
		"parse_errors": parseErrors,
	})
}

// PreviewRun computes a change-set without committing anything.
func (h *ReconciliationHandler) PreviewRun(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}

	run, err := h.service.PlanRun(batchID, c.GetHeader("X-Operator"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	h.runs[run.Report().RunID] = run
	h.mu.Unlock()

	c.JSON(http.StatusOK, run.Report())
}

// ApplyRun commits a previously previewed run.
func (h *ReconciliationHandler) ApplyRun(c *gin.Context) {
	var payload struct {
		RunID string `json:"run_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	runID, err := uuid.Parse(payload.RunID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	h.mu.Lock()
	run, ok := h.runs[runID]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": service.ErrApplyWithoutPreview.Error()})
		return
	}

	report, err := run.Apply(c.GetHeader("X-Operator"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// The change-set is committed; holding the run any longer only leaks it.
	h.mu.Lock()
	delete(h.runs, runID)
	h.mu.Unlock()

	c.JSON(http.StatusOK, report)
}

func (h *ReconciliationHandler) GetBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}
	batch, err := h.service.GetBatch(batchID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	stats, err := h.service.GetBatchStats(batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch, "stats": stats})
}

func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	txs, next, hasMore, err := h.service.ListTransactions(batchID, c.Query("status"), c.Query("cursor"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"next_cursor":  next,
		"has_more":     hasMore,
	})
}

// ManualMatch links a transaction to an operator-chosen record.
func (h *ReconciliationHandler) ManualMatch(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}
	var payload struct {
		RecordID string `json:"record_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	recordID, err := uuid.Parse(payload.RecordID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record ID"})
		return
	}

	balance, err := h.service.ManualLink(txID, recordID, c.GetHeader("X-Operator"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction linked", "balance": balance})
}

func (h *ReconciliationHandler) Unlink(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}
	report, err := h.service.UnlinkTransaction(txID, c.GetHeader("X-Operator"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction unlinked", "report": report})
}

func (h *ReconciliationHandler) BookingBalance(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking ID"})
		return
	}
	balance, err := h.service.RecomputeBooking(bookingID)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, balance)
}

// RollbackBatch removes a bad import batch after snapshotting its rows.
func (h *ReconciliationHandler) RollbackBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}
	report, err := h.service.RollbackBatch(batchID, c.GetHeader("X-Operator"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "batch rolled back", "removed": report.RowsDeleted, "report": report})
}
