package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"reparto-backend/internal/models"
)

// HTTPWriter posts accepted fixes to the API as the authenticated courier.
type HTTPWriter struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPWriter(baseURL, token string) *HTTPWriter {
	return &HTTPWriter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WritePosition implements Writer. The server derives the courier from the
// token, courierID is only used in errors.
func (w *HTTPWriter) WritePosition(ctx context.Context, courierID string, fix Fix) error {
	report := models.PositionReport{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Speed:     fix.Speed,
		Heading:   fix.Heading,
		Timestamp: fix.At.Unix(),
	}
	if fix.Accuracy > 0 {
		acc := fix.Accuracy
		report.Accuracy = &acc
	}

	body, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "encode position")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/api/courier/position", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post position for %s", courierID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("post position for %s: status %d: %s", courierID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
