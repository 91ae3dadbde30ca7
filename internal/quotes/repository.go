package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-b2b/tradewind/internal/platform/db"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means a concurrent mutation won the version race;
	// the caller saw stale state and must not retry blindly.
	ErrVersionConflict = errors.New("quote version conflict")
)

// Repository stores quote documents and templates. Every mutation of an
// existing quote goes through Save, which enforces a compare-and-swap on the
// quote's version so concurrent lifecycle operations cannot clobber each
// other.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id string) (*Quote, error)
	GetByNumber(ctx context.Context, number string) (*Quote, error)
	List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error)
	Create(ctx context.Context, q *Quote) error
	// Save persists q in full. expectedVersion is the CurrentVersion the
	// caller read; a mismatch returns ErrVersionConflict.
	Save(ctx context.Context, q *Quote, expectedVersion int) error
	// ListActiveByValidUntil returns sent/viewed quotes whose valid_until is
	// at or before the cutoff.
	ListActiveByValidUntil(ctx context.Context, cutoff time.Time) ([]Quote, error)
	NextNumber(ctx context.Context, year int) (int, error)
	ListTemplates(ctx context.Context, companyID string) ([]Template, error)
	SaveTemplate(ctx context.Context, tpl *Template) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const quoteColumns = `id, number, company_id, contact_id, status, order_type,
	items, pricing, terms, current_version, versions, timeline,
	converted_order_id, created_by, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id string) (*Quote, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM quotes WHERE id = $1`, quoteColumns), id)
	return scanQuote(row)
}

func (r *repository) GetByNumber(ctx context.Context, number string) (*Quote, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM quotes WHERE number = $1`, quoteColumns), number)
	return scanQuote(row)
}

func (r *repository) List(ctx context.Context, req ListQuotesRequest) ([]Quote, int, error) {
	conditions := []string{"TRUE"}
	var args []interface{}
	argPos := 1

	if req.CompanyID != "" {
		conditions = append(conditions, fmt.Sprintf("company_id = $%d", argPos))
		args = append(args, req.CompanyID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM quotes %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM quotes %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, q *Quote) error {
	items, pricingDoc, terms, versions, timeline, err := marshalDocs(q)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO quotes (id, number, company_id, contact_id, status, order_type,
			items, pricing, terms, current_version, versions, timeline,
			converted_order_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, q.ID, q.Number, q.CompanyID, q.ContactID, q.Status, q.OrderType,
		items, pricingDoc, terms, q.CurrentVersion, versions, timeline,
		q.ConvertedOrderID, q.CreatedBy, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("quotes: insert: %w", err)
	}
	return nil
}

func (r *repository) Save(ctx context.Context, q *Quote, expectedVersion int) error {
	items, pricingDoc, terms, versions, timeline, err := marshalDocs(q)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE quotes
		SET status = $1, order_type = $2, items = $3, pricing = $4, terms = $5,
			current_version = $6, versions = $7, timeline = $8,
			converted_order_id = $9, updated_at = $10
		WHERE id = $11 AND current_version = $12
	`, q.Status, q.OrderType, items, pricingDoc, terms,
		q.CurrentVersion, versions, timeline,
		q.ConvertedOrderID, q.UpdatedAt, q.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("quotes: save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a stale version from a missing row.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quotes WHERE id = $1)`, q.ID).Scan(&exists); err != nil {
			return fmt.Errorf("quotes: save recheck: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *repository) ListActiveByValidUntil(ctx context.Context, cutoff time.Time) ([]Quote, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM quotes
		WHERE status IN ($1, $2) AND (terms->>'valid_until')::timestamptz <= $3
		ORDER BY created_at
	`, quoteColumns), StatusSent, StatusViewed, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}

func (r *repository) NextNumber(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.db.QueryRow(ctx, `
		INSERT INTO quote_sequences (year, seq)
		VALUES ($1, 1)
		ON CONFLICT (year)
		DO UPDATE SET seq = quote_sequences.seq + 1
		RETURNING seq
	`, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("quotes: next number: %w", err)
	}
	return seq, nil
}

func (r *repository) ListTemplates(ctx context.Context, companyID string) ([]Template, error) {
	query := `SELECT id, company_id, name, items, terms, created_by, created_at, updated_at FROM quote_templates`
	var args []interface{}
	if companyID != "" {
		query += ` WHERE company_id = $1 OR company_id = ''`
		args = append(args, companyID)
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var tpl Template
		var items, terms []byte
		if err := rows.Scan(&tpl.ID, &tpl.CompanyID, &tpl.Name, &items, &terms,
			&tpl.CreatedBy, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &tpl.Items); err != nil {
			return nil, fmt.Errorf("quotes: decode template items: %w", err)
		}
		if err := json.Unmarshal(terms, &tpl.Terms); err != nil {
			return nil, fmt.Errorf("quotes: decode template terms: %w", err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (r *repository) SaveTemplate(ctx context.Context, tpl *Template) error {
	items, err := json.Marshal(tpl.Items)
	if err != nil {
		return fmt.Errorf("quotes: encode template items: %w", err)
	}
	terms, err := json.Marshal(tpl.Terms)
	if err != nil {
		return fmt.Errorf("quotes: encode template terms: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO quote_templates (id, company_id, name, items, terms, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, items = EXCLUDED.items,
			terms = EXCLUDED.terms, updated_at = EXCLUDED.updated_at
	`, tpl.ID, tpl.CompanyID, tpl.Name, items, terms, tpl.CreatedBy, tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("quotes: save template: %w", err)
	}
	return nil
}

func marshalDocs(q *Quote) (items, pricingDoc, terms, versions, timeline []byte, err error) {
	if items, err = json.Marshal(q.Items); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("quotes: encode items: %w", err)
	}
	if pricingDoc, err = json.Marshal(q.Pricing); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("quotes: encode pricing: %w", err)
	}
	if terms, err = json.Marshal(q.Terms); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("quotes: encode terms: %w", err)
	}
	if versions, err = json.Marshal(q.Versions); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("quotes: encode versions: %w", err)
	}
	if timeline, err = json.Marshal(q.Timeline); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("quotes: encode timeline: %w", err)
	}
	return items, pricingDoc, terms, versions, timeline, nil
}

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	var items, pricingDoc, terms, versions, timeline []byte
	err := row.Scan(&q.ID, &q.Number, &q.CompanyID, &q.ContactID, &q.Status, &q.OrderType,
		&items, &pricingDoc, &terms, &q.CurrentVersion, &versions, &timeline,
		&q.ConvertedOrderID, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &q.Items); err != nil {
		return nil, fmt.Errorf("quotes: decode items: %w", err)
	}
	if err := json.Unmarshal(pricingDoc, &q.Pricing); err != nil {
		return nil, fmt.Errorf("quotes: decode pricing: %w", err)
	}
	if err := json.Unmarshal(terms, &q.Terms); err != nil {
		return nil, fmt.Errorf("quotes: decode terms: %w", err)
	}
	if err := json.Unmarshal(versions, &q.Versions); err != nil {
		return nil, fmt.Errorf("quotes: decode versions: %w", err)
	}
	if err := json.Unmarshal(timeline, &q.Timeline); err != nil {
		return nil, fmt.Errorf("quotes: decode timeline: %w", err)
	}
	return &q, nil
}
