package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/Rozthegray/ledger-guard/internal/logger"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

const (
	auditsTable       = "audits"
	transactionsTable = "audit_transactions"
	balanceTable      = "balance_points"

	// maxErrorLen bounds what we store from failure messages.
	maxErrorLen = 2000
)

// Repository is the BigQuery-backed audit store. One client is shared by
// all calls; Close releases it.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRepository creates a Repository for the given project and dataset.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &Repository{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close releases the underlying client.
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, name)
}

// CreateAudit inserts a PENDING audit record for an uploaded statement.
func (r *Repository) CreateAudit(ctx context.Context, auditID, userID, gcsURI, filename string) error {
	row := &AuditRow{
		AuditID:   auditID,
		UserID:    userID,
		GCSURI:    gcsURI,
		Filename:  filename,
		Status:    AuditPending,
		CreatedTS: time.Now(),
	}

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(auditsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("CreateAudit: inserting row: %w", err)
	}
	return nil
}

// MarkRunning moves an audit to RUNNING.
func (r *Repository) MarkRunning(ctx context.Context, auditID string) error {
	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status
		WHERE audit_id = @audit_id
	`, r.table(auditsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: AuditRunning},
		{Name: "audit_id", Value: auditID},
	}
	if err := r.runAndWait(ctx, q); err != nil {
		return fmt.Errorf("MarkRunning: %w", err)
	}
	return nil
}

// MarkFailed moves an audit to FAILED. It never reports its own failure
// back to the caller; by the time it runs the audit is already lost.
func (r *Repository) MarkFailed(ctx context.Context, auditID string, cause error) {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
		if len(errMsg) > maxErrorLen {
			errMsg = errMsg[:maxErrorLen]
		}
	}

	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE audit_id = @audit_id
	`, r.table(auditsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: AuditFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "audit_id", Value: auditID},
	}
	if err := r.runAndWait(ctx, q); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).
			Str("audit_id", auditID).
			Msg("Failed to mark audit as FAILED")
	}
}

// Complete stores the enriched transactions and finalizes the audit row
// in one pass.
func (r *Repository) Complete(ctx context.Context, auditID string, txs []domain.EnrichedTransaction, riskScore int) error {
	now := time.Now()
	rows := make([]*TransactionRow, len(txs))
	for i, tx := range txs {
		rows[i] = toTransactionRow(auditID, i, tx, now)
	}

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("Complete: inserting transactions: %w", err)
	}

	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    risk_score = @risk_score,
		    transaction_count = @transaction_count,
		    finished_ts = @finished_ts,
		    error_message = ""
		WHERE audit_id = @audit_id
	`, r.table(auditsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: AuditCompleted},
		{Name: "risk_score", Value: int64(riskScore)},
		{Name: "transaction_count", Value: int64(len(txs))},
		{Name: "finished_ts", Value: now},
		{Name: "audit_id", Value: auditID},
	}
	if err := r.runAndWait(ctx, q); err != nil {
		return fmt.Errorf("Complete: finalizing audit: %w", err)
	}
	return nil
}

// GetAudit retrieves a single audit record, or nil when it does not exist.
func (r *Repository) GetAudit(ctx context.Context, auditID string) (*AuditRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT audit_id, user_id, gcs_uri, original_filename, status,
		       risk_score, transaction_count, error_message, created_ts, finished_ts
		FROM %s
		WHERE audit_id = @audit_id
		LIMIT 1
	`, r.table(auditsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "audit_id", Value: auditID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAudit: query read: %w", err)
	}

	var row AuditRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAudit: iter next: %w", err)
	}
	return &row, nil
}

// ListAudits returns a user's audits, newest first.
func (r *Repository) ListAudits(ctx context.Context, userID string, limit int) ([]*AuditRow, error) {
	if limit <= 0 {
		limit = 50
	}

	q := r.client.Query(fmt.Sprintf(`
		SELECT audit_id, user_id, gcs_uri, original_filename, status,
		       risk_score, transaction_count, error_message, created_ts, finished_ts
		FROM %s
		WHERE user_id = @user_id
		ORDER BY created_ts DESC
		LIMIT @limit
	`, r.table(auditsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAudits: query read: %w", err)
	}

	var rows []*AuditRow
	for {
		var row AuditRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAudits: iter next: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// ListAuditTransactions returns an audit's transactions in statement order.
func (r *Repository) ListAuditTransactions(ctx context.Context, auditID string) ([]domain.EnrichedTransaction, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT audit_id, position, transaction_date, raw_date, description,
		       amount, vendor, category, category_source, category_confidence,
		       is_anomaly, risk_score, audit_reason, created_ts
		FROM %s
		WHERE audit_id = @audit_id
		ORDER BY position
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "audit_id", Value: auditID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAuditTransactions: query read: %w", err)
	}

	var txs []domain.EnrichedTransaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAuditTransactions: iter next: %w", err)
		}
		txs = append(txs, toEnrichedTransaction(&row))
	}
	return txs, nil
}

// VendorHistory aggregates past transaction amounts per vendor across a
// user's completed audits. Vendorless rows are excluded; they cannot
// anchor a history.
func (r *Repository) VendorHistory(ctx context.Context, userID string) (domain.VendorHistory, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT t.vendor, t.amount
		FROM %s t
		INNER JOIN %s a ON t.audit_id = a.audit_id
		WHERE a.user_id = @user_id
		  AND a.status = @status
		  AND t.vendor != ""
		ORDER BY t.created_ts
	`, r.table(transactionsTable), r.table(auditsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "status", Value: AuditCompleted},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("VendorHistory: query read: %w", err)
	}

	history := make(domain.VendorHistory)
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("VendorHistory: iter next: %w", err)
		}
		if row.Amount == nil {
			continue
		}
		history[row.Vendor] = append(history[row.Vendor], decimal.NewFromBigRat(row.Amount, 2))
	}
	return history, nil
}

// RecordBalancePoint stores one end-of-day balance observation.
func (r *Repository) RecordBalancePoint(ctx context.Context, userID string, point domain.BalancePoint) error {
	row := &BalancePointRow{
		UserID:    userID,
		PointDate: civil.DateOf(point.Date),
		Balance:   point.Balance.Rat(),
		CreatedTS: time.Now(),
	}

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(balanceTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("RecordBalancePoint: inserting row: %w", err)
	}
	return nil
}

// BalanceHistory returns a user's balance points in date order, as input
// for the forecaster.
func (r *Repository) BalanceHistory(ctx context.Context, userID string) ([]domain.BalancePoint, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT user_id, point_date, balance, created_ts
		FROM %s
		WHERE user_id = @user_id
		ORDER BY point_date
	`, r.table(balanceTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BalanceHistory: query read: %w", err)
	}

	var points []domain.BalancePoint
	for {
		var row BalancePointRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("BalanceHistory: iter next: %w", err)
		}
		balance := decimal.Zero
		if row.Balance != nil {
			balance = decimal.NewFromBigRat(row.Balance, 2)
		}
		points = append(points, domain.BalancePoint{
			Date:    row.PointDate.In(time.UTC),
			Balance: balance,
		})
	}
	return points, nil
}

// runAndWait executes a DML query and surfaces job-level errors.
func (r *Repository) runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
