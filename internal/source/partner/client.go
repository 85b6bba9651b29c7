// Package partner implements the expense-sharing service adapter: list
// expenses changed since a watermark, create an equally-split expense,
// delete one, and resolve the running balance with the financial partner.
package partner

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

const pageSize = 50

// Client is a typed client for the expense-sharing partner service.
type Client struct {
	http *source.HTTPClient

	// partnerID identifies the financial partner whose balance and shared
	// expenses this engine tracks.
	partnerID int64
}

// New builds a partner-service client.
func New(baseURL, token string, partnerID int64, timeout time.Duration, backoff source.Backoff) (*Client, error) {
	hc, err := source.NewHTTPClient(baseURL, token, timeout, backoff)
	if err != nil {
		return nil, fmt.Errorf("partner client: %w", err)
	}
	return &Client{http: hc, partnerID: partnerID}, nil
}

var _ source.Partner = (*Client)(nil)

type expenseDTO struct {
	ID                 int64           `json:"id"`
	Cost               decimal.Decimal `json:"cost"`
	TransactionBalance decimal.Decimal `json:"transaction_balance"`
	Description        string          `json:"description"`
	Date               time.Time       `json:"date"`
	Payment            bool            `json:"payment"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type listResponse struct {
	Expenses []expenseDTO `json:"expenses"`
	Offset   string       `json:"offset,omitempty"`
}

// ListChanged returns expenses modified after the watermark, oldest
// modification first.
func (c *Client) ListChanged(ctx context.Context, since time.Time) ([]models.PartnerExpense, error) {
	var all []models.PartnerExpense
	offset := ""
	for {
		q := url.Values{
			"friend_id": {strconv.FormatInt(c.partnerID, 10)},
			"page_size": {strconv.Itoa(pageSize)},
		}
		if !since.IsZero() {
			q.Set("updated_after", since.UTC().Format(time.RFC3339))
		}
		if offset != "" {
			q.Set("offset", offset)
		}

		var page listResponse
		if err := c.http.DoJSON(ctx, http.MethodGet, "/api/expenses", q, nil, &page); err != nil {
			return nil, fmt.Errorf("list partner expenses: %w", err)
		}
		for _, dto := range page.Expenses {
			all = append(all, dto.toModel())
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].UpdatedAt.Before(all[j].UpdatedAt)
	})
	return all, nil
}

// CreateExpense creates an equally-split expense for the full cost. The
// partner service assigns the id and reports our transaction balance, which
// is half the cost for an equal two-way split.
func (c *Client) CreateExpense(ctx context.Context, cost decimal.Decimal, description string, date time.Time) (*models.PartnerExpense, error) {
	body := map[string]any{
		"cost":        cost,
		"description": description,
		"date":        date.UTC().Format(time.RFC3339),
		"friend_id":   c.partnerID,
		"split":       "equal",
	}
	var created expenseDTO
	if err := c.http.DoJSON(ctx, http.MethodPost, "/api/expenses", nil, body, &created); err != nil {
		return nil, fmt.Errorf("create partner expense: %w", err)
	}
	expense := created.toModel()
	return &expense, nil
}

// DeleteExpense removes an expense on the partner side.
func (c *Client) DeleteExpense(ctx context.Context, id int64) error {
	path := "/api/expenses/" + strconv.FormatInt(id, 10)
	if err := c.http.DoJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("delete partner expense %d: %w", id, err)
	}
	return nil
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// Balance resolves the running balance with the financial partner.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	q := url.Values{"friend_id": {strconv.FormatInt(c.partnerID, 10)}}
	var resp balanceResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, "/api/balance", q, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("partner balance: %w", err)
	}
	return resp.Balance, nil
}

func (d expenseDTO) toModel() models.PartnerExpense {
	return models.PartnerExpense{
		ID:                 d.ID,
		Cost:               d.Cost,
		TransactionBalance: d.TransactionBalance,
		Description:        d.Description,
		Date:               d.Date,
		Payment:            d.Payment,
		Deleted:            d.DeletedAt != nil,
		UpdatedAt:          d.UpdatedAt,
	}
}
