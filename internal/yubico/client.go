package yubico

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/BradenHooton/keygate/internal/models"
	"github.com/BradenHooton/keygate/pkg/logger"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// DefaultURLs are the public YubiCloud validation endpoints, scheme omitted
var DefaultURLs = []string{
	"api.yubico.com/wsapi/2.0/verify",
	"api2.yubico.com/wsapi/2.0/verify",
	"api3.yubico.com/wsapi/2.0/verify",
	"api4.yubico.com/wsapi/2.0/verify",
	"api5.yubico.com/wsapi/2.0/verify",
}

// Response statuses defined by the validation protocol
const (
	StatusOK                  = "OK"
	StatusBadOTP              = "BAD_OTP"
	StatusReplayedOTP         = "REPLAYED_OTP"
	StatusBadSignature        = "BAD_SIGNATURE"
	StatusMissingParameter    = "MISSING_PARAMETER"
	StatusNoSuchClient        = "NO_SUCH_CLIENT"
	StatusOperationNotAllowed = "OPERATION_NOT_ALLOWED"
	StatusBackendError        = "BACKEND_ERROR"
	StatusNotEnoughAnswers    = "NOT_ENOUGH_ANSWERS"
	StatusReplayedRequest     = "REPLAYED_REQUEST"
)

// Client-side failure statuses. These never come from the server.
const (
	StatusTransportError    = "TRANSPORT_ERROR"
	StatusHTTPError         = "HTTP_ERROR"
	StatusMalformedResponse = "MALFORMED_RESPONSE"
	StatusResponseSignature = "BAD_RESPONSE_SIGNATURE"
	StatusResponseMismatch  = "RESPONSE_MISMATCH"
	StatusBadClientSecret   = "BAD_CLIENT_SECRET"
	StatusTimeout           = "TIMEOUT"
)

const maxResponseBytes = 4 << 10

// VerifyRequest carries one account's verification settings
type VerifyRequest struct {
	ClientID           string
	ClientSecret       string // base64; empty sends an unsigned request
	UseSecureTransport bool
	OverrideURLs       []string
}

// VerificationError reports why the authority did not accept an OTP
type VerificationError struct {
	Status string
	Reason string
}

func (e *VerificationError) Error() string {
	if e.Reason == "" {
		return "otp verification failed: " + e.Status
	}
	return fmt.Sprintf("otp verification failed: %s (%s)", e.Status, e.Reason)
}

func (e *VerificationError) Unwrap() error {
	return models.ErrVerificationFailed
}

// failover reports whether the next endpoint should be tried
func (e *VerificationError) failover() bool {
	switch e.Status {
	case StatusBackendError, StatusTransportError, StatusHTTPError,
		StatusMalformedResponse, StatusResponseSignature, StatusResponseMismatch:
		return true
	}
	return false
}

// Client talks to a Yubico validation protocol 2.0 service
type Client struct {
	http        *http.Client
	logger      *slog.Logger
	backoffBase time.Duration
	newNonce    func() string
}

func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		http:        httpClient,
		logger:      logger,
		backoffBase: 50 * time.Millisecond,
		newNonce:    newNonce,
	}
}

// newNonce returns 32 lowercase hex characters
func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// VerifyRemote asks the validation service whether otp is valid and unused.
// Endpoints are tried in order; only transient failures move on to the next one.
func (c *Client) VerifyRemote(ctx context.Context, otp string, req VerifyRequest) error {
	var key []byte
	if req.ClientSecret != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ClientSecret)
		if err != nil {
			return &VerificationError{Status: StatusBadClientSecret, Reason: "client secret is not valid base64"}
		}
		key = decoded
	}

	endpoints := c.endpoints(req)
	attempt := 0

	b := retry.NewFibonacci(c.backoffBase)
	b = retry.WithCappedDuration(500*time.Millisecond, b)
	b = retry.WithMaxRetries(uint64(len(endpoints)-1), b)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		endpoint := endpoints[attempt%len(endpoints)]
		attempt++

		err := c.verifyOnce(ctx, endpoint, otp, req.ClientID, key)
		var verr *VerificationError
		if errors.As(err, &verr) && verr.failover() && ctx.Err() == nil {
			c.logger.Warn("validation endpoint failed, trying next",
				slog.String("endpoint", endpoint),
				slog.String("status", verr.Status),
				slog.String("otp", logger.RedactOTP(otp)),
			)
			return retry.RetryableError(err)
		}
		return err
	})

	if err != nil && ctx.Err() != nil {
		return &VerificationError{Status: StatusTimeout, Reason: ctx.Err().Error()}
	}
	return err
}

func (c *Client) endpoints(req VerifyRequest) []string {
	hosts := DefaultURLs
	if len(req.OverrideURLs) > 0 {
		hosts = req.OverrideURLs
	}

	scheme := "http://"
	if req.UseSecureTransport {
		scheme = "https://"
	}

	urls := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(h), "https://"), "http://")
		if h == "" {
			continue
		}
		urls = append(urls, scheme+h)
	}
	if len(urls) == 0 {
		for _, h := range DefaultURLs {
			urls = append(urls, scheme+h)
		}
	}
	return urls
}

func (c *Client) verifyOnce(ctx context.Context, endpoint, otp, clientID string, key []byte) error {
	nonce := c.newNonce()
	params := map[string]string{
		"id":    clientID,
		"nonce": nonce,
		"otp":   otp,
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	if key != nil {
		query.Set("h", sign(key, params))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return &VerificationError{Status: StatusTransportError, Reason: err.Error()}
	}
	httpReq.Header.Set("User-Agent", "keygate")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &VerificationError{Status: StatusTransportError, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &VerificationError{Status: StatusHTTPError, Reason: resp.Status}
	}

	fields, err := parseResponse(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &VerificationError{Status: StatusMalformedResponse, Reason: err.Error()}
	}

	status := fields["status"]
	if status == "" {
		return &VerificationError{Status: StatusMalformedResponse, Reason: "missing status"}
	}

	if key != nil {
		received, signed := fields["h"]
		// the server cannot sign for a client it does not know
		if !signed && status == StatusNoSuchClient {
			return &VerificationError{Status: status}
		}
		delete(fields, "h")
		if !signed || !hmacEqual(received, sign(key, fields)) {
			return &VerificationError{Status: StatusResponseSignature, Reason: "response signature does not verify"}
		}
	}

	if status != StatusOK {
		return &VerificationError{Status: status}
	}

	if fields["otp"] != otp || fields["nonce"] != nonce {
		return &VerificationError{Status: StatusResponseMismatch, Reason: "response does not echo request"}
	}
	return nil
}

// parseResponse reads key=value lines; values may themselves contain '='
func parseResponse(r io.Reader) (map[string]string, error) {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid line %q", line)
		}
		fields[k] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.New("empty response")
	}
	return fields, nil
}

// sign computes base64(HMAC-SHA1) over the parameters sorted by key, joined as k=v&k=v
func sign(key []byte, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}

	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(strings.Join(pairs, "&")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func hmacEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
