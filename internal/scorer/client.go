package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/shreyank06/data-engineering-project/internal/config"
	"github.com/shreyank06/data-engineering-project/internal/domain"
)

// ErrTransient marks scorer failures worth retrying: network errors, 5xx
// responses, and rate limiting. Anything else is treated as permanent.
var ErrTransient = errors.New("transient scorer error")

// journeyRow is the wire format the IHC API expects: journeys are flattened
// to one row per (conversion, session) pair, not nested per conversion.
type journeyRow struct {
	ConversionID          string `json:"conversion_id"`
	SessionID             string `json:"session_id"`
	Timestamp             string `json:"timestamp"`
	ChannelLabel          string `json:"channel_label"`
	HolderEngagement      int    `json:"holder_engagement"`
	CloserEngagement      int    `json:"closer_engagement"`
	ImpressionInteraction int    `json:"impression_interaction"`
	Conversion            int    `json:"conversion"`
}

type computeRequest struct {
	CustomerJourneys []journeyRow `json:"customer_journeys"`
}

type creditRow struct {
	ConversionID string  `json:"conversion_id"`
	SessionID    string  `json:"session_id"`
	IHC          float64 `json:"ihc"`
}

type computeResponse struct {
	Value []creditRow `json:"value"`
}

// HTTPClient calls the IHC compute endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	convTypeID string
	httpClient *http.Client
	log        *zap.Logger
}

// NewHTTPClient creates a new IHC API client from explicit configuration.
// The API key is passed in here rather than read from process-wide state.
func NewHTTPClient(cfg config.Scorer, log *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		convTypeID: cfg.ConvTypeID,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
		log:        log,
	}
}

// Score sends one batch of journeys and returns the per-session credits. The
// timeout applies to this single call; callers own retries and overall
// cancellation.
func (c *HTTPClient) Score(ctx context.Context, journeys []domain.Journey) ([]domain.AttributionCredit, error) {
	body, err := json.Marshal(computeRequest{CustomerJourneys: flatten(journeys)})
	if err != nil {
		return nil, fmt.Errorf("marshal compute request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/compute_ihc?conv_type_id=%s", c.baseURL, url.QueryEscape(c.convTypeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build compute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, snippet)
		}
		return nil, fmt.Errorf("scorer rejected request: status %d: %s", resp.StatusCode, snippet)
	}

	var decoded computeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode compute response: %w", err)
	}

	credits := make([]domain.AttributionCredit, 0, len(decoded.Value))
	for _, row := range decoded.Value {
		credits = append(credits, domain.AttributionCredit{
			ConvID:    row.ConversionID,
			SessionID: row.SessionID,
			IHC:       row.IHC,
		})
	}

	c.log.Debug("Scored batch",
		zap.Int("journeys", len(journeys)),
		zap.Int("credit_rows", len(credits)))

	return credits, nil
}

// flatten turns journeys into the one-row-per-session wire format. The final
// touch of each journey is marked as the conversion moment; all submitted
// sessions strictly precede the conversion, so earlier rows carry 0.
func flatten(journeys []domain.Journey) []journeyRow {
	var rows []journeyRow
	for _, j := range journeys {
		for i, tp := range j.Touchpoints {
			conversion := 0
			if i == len(j.Touchpoints)-1 {
				conversion = 1
			}
			rows = append(rows, journeyRow{
				ConversionID:          j.ConvID,
				SessionID:             tp.SessionID,
				Timestamp:             tp.Timestamp.Format("2006-01-02T15:04:05"),
				ChannelLabel:          tp.ChannelName,
				HolderEngagement:      tp.HolderEngagement,
				CloserEngagement:      tp.CloserEngagement,
				ImpressionInteraction: tp.ImpressionInteraction,
				Conversion:            conversion,
			})
		}
	}
	return rows
}
