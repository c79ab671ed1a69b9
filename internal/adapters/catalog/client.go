package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
)

// Client is the HTTP adapter for the voucher catalog oracle and the
// provider directory. Both live behind the same catalog service. Every
// call carries the caller's context deadline; an exceeded deadline is
// reported as domain.ErrCatalogTimeout so the redemption fails closed as
// transient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a catalog client. The client timeout is a backstop;
// the per-call context deadline is the effective bound.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// GetVoucher fetches the voucher snapshot from the catalog oracle.
func (c *Client) GetVoucher(ctx context.Context, voucherID string) (*domain.Voucher, error) {
	var voucher domain.Voucher
	if err := c.getJSON(ctx, fmt.Sprintf("%s/vouchers/%s", c.baseURL, voucherID), &voucher); err != nil {
		return nil, err
	}
	return &voucher, nil
}

// GetProvider fetches a provider profile from the directory.
func (c *Client) GetProvider(ctx context.Context, providerID string) (*ports.ProviderProfile, error) {
	var profile ports.ProviderProfile
	err := c.getJSON(ctx, fmt.Sprintf("%s/providers/%s", c.baseURL, providerID), &profile)
	if err != nil {
		// 404 is reported generically by getJSON; name the right entity here.
		if domain.IsDomainError(err, domain.ErrorCodeVoucherNotFound) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeCatalogUnavailable, "build catalog request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.WrapError(domain.ErrorCodeCatalogTimeout, "catalog request timed out", err)
		}
		c.logger.Warn("catalog request failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return domain.WrapError(domain.ErrorCodeCatalogUnavailable, "catalog request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrVoucherNotFound
	case resp.StatusCode != http.StatusOK:
		c.logger.Warn("catalog returned unexpected status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return domain.NewDomainError(domain.ErrorCodeCatalogUnavailable,
			fmt.Sprintf("catalog returned status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrorCodeCatalogUnavailable, "decode catalog response", err)
	}
	return nil
}
