package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/diwise/threshold-alerts/pkg/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var tracer = otel.Tracer("threshold-alerts-client")

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type ThresholdAlertsClient interface {
	ListThresholds(ctx context.Context) ([]types.Threshold, error)
	GetThreshold(ctx context.Context, thresholdID uint) (types.Threshold, error)
	CreateThreshold(ctx context.Context, req types.CreateThresholdRequest) (types.Threshold, error)
	UpdateThreshold(ctx context.Context, thresholdID uint, req types.UpdateThresholdRequest) (types.Threshold, error)
	DeleteThreshold(ctx context.Context, thresholdID uint) error

	ListAllValues(ctx context.Context) ([]types.Value, error)
	ListAllAlerts(ctx context.Context, resolved *bool) ([]types.AlertDetails, error)
	ResolveAlert(ctx context.Context, alertID uint) (types.Alert, error)

	SubmitValue(ctx context.Context, value float64) (types.Submission, error)
	ListMyValues(ctx context.Context) ([]types.Value, error)
	ListMyAlerts(ctx context.Context, resolved *bool) ([]types.AlertDetails, error)

	Close(ctx context.Context)
}

type thresholdAlertsClient struct {
	url        string
	httpClient http.Client
}

// New creates a client that authenticates using the OAuth2 client credentials
// flow. A token is requested up front so that bad credentials fail early.
func New(ctx context.Context, serviceURL, oauthTokenURL, oauthClientID, oauthClientSecret string) (ThresholdAlertsClient, error) {
	oauthConfig := &clientcredentials.Config{
		ClientID:     oauthClientID,
		ClientSecret: oauthClientSecret,
		TokenURL:     oauthTokenURL,
	}

	base := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	source := oauthConfig.TokenSource(ctx)

	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get client credentials from %s: %w", oauthTokenURL, err)
	}

	if !token.Valid() {
		return nil, fmt.Errorf("an invalid token was returned from %s", oauthTokenURL)
	}

	return newClient(serviceURL, source), nil
}

// NewWithToken creates a client that presents an already issued bearer token.
func NewWithToken(serviceURL, token string) ThresholdAlertsClient {
	return newClient(serviceURL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

func newClient(serviceURL string, source oauth2.TokenSource) *thresholdAlertsClient {
	return &thresholdAlertsClient{
		url: strings.TrimSuffix(serviceURL, "/"),
		httpClient: http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, source),
				Base:   otelhttp.NewTransport(http.DefaultTransport),
			},
		},
	}
}

func (c *thresholdAlertsClient) ListThresholds(ctx context.Context) ([]types.Threshold, error) {
	result := []types.Threshold{}
	err := c.do(ctx, "list-thresholds", http.MethodGet, "/api/admin/thresholds", nil, &result)
	return result, err
}

func (c *thresholdAlertsClient) GetThreshold(ctx context.Context, thresholdID uint) (types.Threshold, error) {
	result := types.Threshold{}
	err := c.do(ctx, "get-threshold", http.MethodGet, fmt.Sprintf("/api/admin/thresholds/%d", thresholdID), nil, &result)
	return result, err
}

func (c *thresholdAlertsClient) CreateThreshold(ctx context.Context, req types.CreateThresholdRequest) (types.Threshold, error) {
	result := types.Threshold{}
	err := c.do(ctx, "create-threshold", http.MethodPost, "/api/admin/thresholds", req, &result)
	return result, err
}

func (c *thresholdAlertsClient) UpdateThreshold(ctx context.Context, thresholdID uint, req types.UpdateThresholdRequest) (types.Threshold, error) {
	result := types.Threshold{}
	err := c.do(ctx, "update-threshold", http.MethodPut, fmt.Sprintf("/api/admin/thresholds/%d", thresholdID), req, &result)
	return result, err
}

func (c *thresholdAlertsClient) DeleteThreshold(ctx context.Context, thresholdID uint) error {
	return c.do(ctx, "delete-threshold", http.MethodDelete, fmt.Sprintf("/api/admin/thresholds/%d", thresholdID), nil, nil)
}

func (c *thresholdAlertsClient) ListAllValues(ctx context.Context) ([]types.Value, error) {
	result := []types.Value{}
	err := c.do(ctx, "list-all-values", http.MethodGet, "/api/admin/values", nil, &result)
	return result, err
}

func (c *thresholdAlertsClient) ListAllAlerts(ctx context.Context, resolved *bool) ([]types.AlertDetails, error) {
	result := []types.AlertDetails{}
	err := c.do(ctx, "list-all-alerts", http.MethodGet, withResolved("/api/admin/alerts", resolved), nil, &result)
	return result, err
}

func (c *thresholdAlertsClient) ResolveAlert(ctx context.Context, alertID uint) (types.Alert, error) {
	result := types.Alert{}
	err := c.do(ctx, "resolve-alert", http.MethodPost, fmt.Sprintf("/api/admin/alerts/%d/resolve", alertID), nil, &result)
	return result, err
}

func (c *thresholdAlertsClient) SubmitValue(ctx context.Context, value float64) (types.Submission, error) {
	result := types.Submission{}
	err := c.do(ctx, "submit-value", http.MethodPost, "/api/operator/values", types.SubmitValueRequest{Value: &value}, &result)
	return result, err
}

func (c *thresholdAlertsClient) ListMyValues(ctx context.Context) ([]types.Value, error) {
	result := []types.Value{}
	err := c.do(ctx, "list-my-values", http.MethodGet, "/api/operator/values", nil, &result)
	return result, err
}

func (c *thresholdAlertsClient) ListMyAlerts(ctx context.Context, resolved *bool) ([]types.AlertDetails, error) {
	result := []types.AlertDetails{}
	err := c.do(ctx, "list-my-alerts", http.MethodGet, withResolved("/api/operator/alerts", resolved), nil, &result)
	return result, err
}

func (c *thresholdAlertsClient) Close(ctx context.Context) {
	c.httpClient.CloseIdleConnections()
}

func (c *thresholdAlertsClient) do(ctx context.Context, operation, method, path string, body, result any) error {
	var err error
	ctx, span := tracer.Start(ctx, operation)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	var reader io.Reader
	if body != nil {
		var b []byte
		b, err = json.Marshal(body)
		if err != nil {
			err = fmt.Errorf("failed to marshal request body: %w", err)
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		err = fmt.Errorf("failed to create http request: %w", err)
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("request failed: %w", err)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %w", err)
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		err = errorFromResponse(resp.StatusCode, respBody)
		return err
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}

	err = json.Unmarshal(respBody, result)
	if err != nil {
		err = fmt.Errorf("failed to unmarshal response body: %w", err)
		return err
	}

	return nil
}

func errorFromResponse(status int, body []byte) error {
	msg := struct {
		Message string `json:"message"`
	}{}
	_ = json.Unmarshal(body, &msg)
	if msg.Message == "" {
		msg.Message = http.StatusText(status)
	}

	var kind error
	switch status {
	case http.StatusBadRequest:
		kind = types.ErrValidation
	case http.StatusUnauthorized:
		kind = ErrUnauthorized
	case http.StatusForbidden:
		kind = ErrForbidden
	case http.StatusNotFound:
		kind = types.ErrNotFound
	case http.StatusConflict:
		kind = types.ErrReferentialIntegrity
	default:
		kind = types.ErrPersistence
	}

	return fmt.Errorf("%w: %s (%d)", kind, msg.Message, status)
}

func withResolved(path string, resolved *bool) string {
	if resolved == nil {
		return path
	}
	q := url.Values{}
	q.Set("resolved", strconv.FormatBool(*resolved))
	return path + "?" + q.Encode()
}
