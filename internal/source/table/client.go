// Package table implements the record-table adapter over the table's REST
// API: list-with-filter, single-row create/update, and the bookkeeping flag
// writes the engine performs after processing.
package table

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/models"
	"github.com/fintally/tally/internal/source"
)

// pageSize is the maximum rows per list request; the table caps pages at 100.
const pageSize = 100

// Client is a typed client for the external record table.
type Client struct {
	http *source.HTTPClient
}

// New builds a record-table client.
func New(baseURL, token string, timeout time.Duration, backoff source.Backoff) (*Client, error) {
	hc, err := source.NewHTTPClient(baseURL, token, timeout, backoff)
	if err != nil {
		return nil, fmt.Errorf("table client: %w", err)
	}
	return &Client{http: hc}, nil
}

var _ source.RecordTable = (*Client)(nil)

// recordDTO is the wire shape of one table row.
type recordDTO struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Transaction   string          `json:"transaction"`
	Category      string          `json:"category"`
	Imported      bool            `json:"imported"`
	ImportedAt    *time.Time      `json:"imported_at,omitempty"`
	Deleted       bool            `json:"deleted"`
	Splitwise     bool            `json:"splitwise"`
	SplitwiseID   *int64          `json:"splitwise_id,omitempty"`
	PartnerOrigin bool            `json:"partner_origin,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type listResponse struct {
	Records []recordDTO `json:"records"`
	Offset  string      `json:"offset,omitempty"`
}

// ListPending returns unimported live records plus unacknowledged deletions,
// oldest modification first.
func (c *Client) ListPending(ctx context.Context) ([]models.Record, error) {
	var out []models.Record

	// Two filtered scans: new rows, then pending deletions. The table's
	// filter language cannot express the disjunction in one query.
	newRows, err := c.list(ctx, url.Values{
		"imported": {"false"},
		"deleted":  {"false"},
	})
	if err != nil {
		return nil, fmt.Errorf("list new records: %w", err)
	}
	deletedRows, err := c.list(ctx, url.Values{
		"deleted":      {"true"},
		"acknowledged": {"false"},
	})
	if err != nil {
		return nil, fmt.Errorf("list pending deletions: %w", err)
	}

	for _, dto := range append(newRows, deletedRows...) {
		rec, err := dto.toModel()
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", dto.ID, err)
		}
		out = append(out, rec)
	}
	// The server orders each page by last-modified; re-sort across the two
	// scans so causal ordering holds for the whole batch.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

func (c *Client) list(ctx context.Context, filter url.Values) ([]recordDTO, error) {
	var all []recordDTO
	offset := ""
	for {
		q := url.Values{}
		for k, vs := range filter {
			q[k] = vs
		}
		q.Set("page_size", strconv.Itoa(pageSize))
		q.Set("sort", "updated_at")
		if offset != "" {
			q.Set("offset", offset)
		}

		var page listResponse
		if err := c.http.DoJSON(ctx, http.MethodGet, "/api/records", q, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if page.Offset == "" {
			return all, nil
		}
		offset = page.Offset
	}
}

// Create inserts a record and returns the table-assigned id.
func (c *Client) Create(ctx context.Context, rec *models.Record) (string, error) {
	dto := toDTO(rec)
	var created recordDTO
	if err := c.http.DoJSON(ctx, http.MethodPost, "/api/records", nil, dto, &created); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	return created.ID, nil
}

// Update rewrites the record's fields at the source.
func (c *Client) Update(ctx context.Context, rec *models.Record) error {
	if err := c.http.DoJSON(ctx, http.MethodPatch, "/api/records/"+rec.ID, nil, toDTO(rec), nil); err != nil {
		return fmt.Errorf("update record %s: %w", rec.ID, err)
	}
	return nil
}

// MarkImported sets the imported flag and timestamp.
func (c *Client) MarkImported(ctx context.Context, id string, importedAt time.Time) error {
	body := map[string]any{"imported": true, "imported_at": importedAt}
	if err := c.http.DoJSON(ctx, http.MethodPatch, "/api/records/"+id, nil, body, nil); err != nil {
		return fmt.Errorf("mark imported %s: %w", id, err)
	}
	return nil
}

// AcknowledgeDelete marks a deleted row fully processed so it drops out of
// ListPending. Rows are never physically removed at the source.
func (c *Client) AcknowledgeDelete(ctx context.Context, id string) error {
	body := map[string]any{"acknowledged": true}
	if err := c.http.DoJSON(ctx, http.MethodPatch, "/api/records/"+id, nil, body, nil); err != nil {
		return fmt.Errorf("acknowledge delete %s: %w", id, err)
	}
	return nil
}

// Annotate attaches an operator-visible error note to a record.
func (c *Client) Annotate(ctx context.Context, id string, note string) error {
	body := map[string]any{"error": note}
	if err := c.http.DoJSON(ctx, http.MethodPatch, "/api/records/"+id, nil, body, nil); err != nil {
		return fmt.Errorf("annotate %s: %w", id, err)
	}
	return nil
}

const dateLayout = "2006-01-02"

func (d recordDTO) toModel() (models.Record, error) {
	category, err := models.ParseCategory(d.Category)
	if err != nil {
		return models.Record{}, err
	}
	date, err := time.Parse(dateLayout, d.Date)
	if err != nil {
		return models.Record{}, fmt.Errorf("bad date %q: %w", d.Date, err)
	}
	return models.Record{
		ID:            d.ID,
		Date:          date,
		Amount:        d.Amount,
		Transaction:   d.Transaction,
		Category:      category,
		Imported:      d.Imported,
		ImportedAt:    d.ImportedAt,
		Deleted:       d.Deleted,
		Splitwise:     d.Splitwise,
		SplitwiseID:   d.SplitwiseID,
		PartnerOrigin: d.PartnerOrigin,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

func toDTO(rec *models.Record) recordDTO {
	return recordDTO{
		ID:            rec.ID,
		Date:          rec.Date.Format(dateLayout),
		Amount:        rec.Amount,
		Transaction:   rec.Transaction,
		Category:      string(rec.Category),
		Imported:      rec.Imported,
		ImportedAt:    rec.ImportedAt,
		Deleted:       rec.Deleted,
		Splitwise:     rec.Splitwise,
		SplitwiseID:   rec.SplitwiseID,
		PartnerOrigin: rec.PartnerOrigin,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}
