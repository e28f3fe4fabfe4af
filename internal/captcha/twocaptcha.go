package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	api2captcha "github.com/2captcha/2captcha-go"
	"github.com/go-resty/resty/v2"

	"searchbot/internal/config"
)

const (
	createTaskPath = "/in.php"
	taskResultPath = "/res.php"

	// notReadyText is the service's spelling, typo included.
	notReadyText = "CAPCHA_NOT_READY"
)

var (
	// ErrSubmissionRejected means in.php answered with status 0.
	ErrSubmissionRejected = errors.New("solving service rejected the task")
	// ErrPollRejected means res.php answered with an error other than "not ready".
	ErrPollRejected = errors.New("solving service returned an error while polling")
	// ErrMissingAPIKey is returned by calls that need a credential.
	ErrMissingAPIKey = errors.New("2captcha API key not configured")
)

// ServiceError carries the raw answer of the solving service. It unwraps to
// ErrSubmissionRejected or ErrPollRejected.
type ServiceError struct {
	Kind       error
	StatusCode int
	Request    string
	ErrorText  string
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Request)
	if e.ErrorText != "" {
		msg += " (" + e.ErrorText + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" [http %d]", e.StatusCode)
	}
	return msg
}

func (e *ServiceError) Unwrap() error {
	return e.Kind
}

// Service is the solving-service protocol used by the solver.
type Service interface {
	// Submit creates a task and returns its request id.
	Submit(ctx context.Context, req SolveRequest) (string, error)
	// Poll asks for the result once. ready is false while the task is still
	// being worked on.
	Poll(ctx context.Context, requestID string) (token string, ready bool, err error)
}

// serviceResponse is the json=1 envelope shared by in.php and res.php.
type serviceResponse struct {
	Status    int    `json:"status"`
	Request   string `json:"request"`
	ErrorText string `json:"error_text,omitempty"`
}

// TwoCaptchaClient speaks the 2captcha in.php/res.php protocol over resty and
// uses the official SDK for account queries.
type TwoCaptchaClient struct {
	apiKey string
	http   *resty.Client
	sdk    *api2captcha.Client
}

// NewTwoCaptchaClient builds a client from the solver configuration.
func NewTwoCaptchaClient(cfg config.RecaptchaConfig) *TwoCaptchaClient {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Accept", "application/json")

	sdk := api2captcha.NewClient(cfg.APIKey)
	sdk.DefaultTimeout = int(cfg.MaxWait.Seconds())
	sdk.RecaptchaTimeout = int(cfg.MaxWait.Seconds())
	sdk.PollingInterval = int(cfg.PollInterval.Seconds())

	return &TwoCaptchaClient{
		apiKey: cfg.APIKey,
		http:   httpClient,
		sdk:    sdk,
	}
}

// Submit posts the task to in.php. A status 0 answer is returned as a
// *ServiceError and is never retried.
func (c *TwoCaptchaClient) Submit(ctx context.Context, req SolveRequest) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(submitParams(c.apiKey, req.Descriptor)).
		Post(createTaskPath)
	if err != nil {
		return "", fmt.Errorf("failed to create 2captcha task: %w", err)
	}

	body, err := decodeResponse(resp)
	if err != nil {
		return "", &ServiceError{Kind: ErrSubmissionRejected, StatusCode: resp.StatusCode(), Request: err.Error()}
	}
	if body.Status != 1 {
		return "", &ServiceError{Kind: ErrSubmissionRejected, Request: body.Request, ErrorText: body.ErrorText}
	}
	return body.Request, nil
}

// Poll queries res.php once.
func (c *TwoCaptchaClient) Poll(ctx context.Context, requestID string) (string, bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":    c.apiKey,
			"action": "get",
			"id":     requestID,
			"json":   "1",
		}).
		Get(taskResultPath)
	if err != nil {
		return "", false, fmt.Errorf("failed to poll 2captcha task %s: %w", requestID, err)
	}

	body, err := decodeResponse(resp)
	if err != nil {
		return "", false, &ServiceError{Kind: ErrPollRejected, StatusCode: resp.StatusCode(), Request: err.Error()}
	}
	switch {
	case body.Status == 1:
		return body.Request, true, nil
	case body.Request == notReadyText:
		return "", false, nil
	default:
		return "", false, &ServiceError{Kind: ErrPollRejected, Request: body.Request, ErrorText: body.ErrorText}
	}
}

// Balance returns the account balance through the official SDK.
func (c *TwoCaptchaClient) Balance() (float64, error) {
	if c.apiKey == "" {
		return 0, ErrMissingAPIKey
	}
	balance, err := c.sdk.GetBalance()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch 2captcha balance: %w", err)
	}
	return balance, nil
}

// submitParams builds the in.php form. version/action/min_score only apply to
// v3; enterprise and proxy only when set.
func submitParams(apiKey string, d Descriptor) map[string]string {
	params := map[string]string{
		"key":       apiKey,
		"method":    "userrecaptcha",
		"googlekey": d.SiteKey,
		"pageurl":   d.PageURL,
		"json":      "1",
	}

	if d.Variant == V3 {
		params["version"] = "v3"
		if d.Action != "" {
			params["action"] = d.Action
		}
		if d.MinScore != nil {
			params["min_score"] = strconv.FormatFloat(*d.MinScore, 'f', -1, 64)
		}
	}
	if d.Enterprise {
		params["enterprise"] = "1"
	}
	if d.Proxy != "" {
		params["proxy"] = d.Proxy
	}

	return params
}

func decodeResponse(resp *resty.Response) (*serviceResponse, error) {
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode())
	}

	var body serviceResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("malformed response %q: %w", truncate(string(resp.Body()), 200), err)
	}
	return &body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
