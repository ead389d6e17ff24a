package yubico

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/keygate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOTP      = "vvvvvvcucrlcietctckflvnncdgckubflugerlnrdddd"
	testClientID = "1234"
)

var (
	testKey    = []byte("0123456789abcdef0123")
	testSecret = base64.StdEncoding.EncodeToString(testKey)
)

// fakeValidator behaves like a validation server. status decides the reply;
// tamper alters the signed response after signing.
type fakeValidator struct {
	status string
	tamper func(fields map[string]string)
	calls  atomic.Int32
	badReq atomic.Int32
}

func (f *fakeValidator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	q := r.URL.Query()

	params := map[string]string{"id": q.Get("id"), "nonce": q.Get("nonce"), "otp": q.Get("otp")}
	if q.Get("h") != sign(testKey, params) {
		f.badReq.Add(1)
	}

	fields := map[string]string{
		"t":      "2026-10-15T10:00:00Z0123",
		"otp":    q.Get("otp"),
		"nonce":  q.Get("nonce"),
		"status": f.status,
	}
	fields["h"] = sign(testKey, fields)
	if f.tamper != nil {
		f.tamper(fields)
	}

	for k, v := range fields {
		fmt.Fprintf(w, "%s=%s\r\n", k, v)
	}
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://") + "/wsapi/2.0/verify"
}

func newTestClient() *Client {
	c := NewClient(&http.Client{Timeout: 2 * time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.backoffBase = time.Millisecond
	return c
}

func request(urls ...string) VerifyRequest {
	return VerifyRequest{
		ClientID:     testClientID,
		ClientSecret: testSecret,
		OverrideURLs: urls,
	}
}

func TestVerifyRemote_OK(t *testing.T) {
	fake := &fakeValidator{status: StatusOK}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	err := newTestClient().VerifyRemote(context.Background(), testOTP, request(hostOf(srv)))

	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.calls.Load())
	assert.Equal(t, int32(0), fake.badReq.Load(), "request signature must verify")
}

func TestVerifyRemote_UnsignedWithoutSecret(t *testing.T) {
	var gotH atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotH.Store(q.Get("h"))
		fmt.Fprintf(w, "otp=%s\nnonce=%s\nstatus=OK\n", q.Get("otp"), q.Get("nonce"))
	}))
	defer srv.Close()

	req := request(hostOf(srv))
	req.ClientSecret = ""

	require.NoError(t, newTestClient().VerifyRemote(context.Background(), testOTP, req))
	assert.Equal(t, "", gotH.Load())
}

func TestVerifyRemote_DefinitiveStatusStops(t *testing.T) {
	for _, status := range []string{StatusBadOTP, StatusReplayedOTP, StatusBadSignature, StatusNoSuchClient} {
		t.Run(status, func(t *testing.T) {
			first := &fakeValidator{status: status}
			second := &fakeValidator{status: StatusOK}
			srv1 := httptest.NewServer(first)
			defer srv1.Close()
			srv2 := httptest.NewServer(second)
			defer srv2.Close()

			err := newTestClient().VerifyRemote(context.Background(), testOTP, request(hostOf(srv1), hostOf(srv2)))

			var verr *VerificationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, status, verr.Status)
			assert.ErrorIs(t, err, models.ErrVerificationFailed)
			assert.Equal(t, int32(0), second.calls.Load(), "no failover after a definitive answer")
		})
	}
}

func TestVerifyRemote_BackendErrorFailsOver(t *testing.T) {
	first := &fakeValidator{status: StatusBackendError}
	second := &fakeValidator{status: StatusOK}
	srv1 := httptest.NewServer(first)
	defer srv1.Close()
	srv2 := httptest.NewServer(second)
	defer srv2.Close()

	err := newTestClient().VerifyRemote(context.Background(), testOTP, request(hostOf(srv1), hostOf(srv2)))

	require.NoError(t, err)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(1), second.calls.Load())
}

func TestVerifyRemote_TransportAndHTTPErrorsFailOver(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downHost := hostOf(down)
	down.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	good := &fakeValidator{status: StatusOK}
	srv := httptest.NewServer(good)
	defer srv.Close()

	err := newTestClient().VerifyRemote(context.Background(), testOTP, request(downHost, hostOf(broken), hostOf(srv)))

	require.NoError(t, err)
	assert.Equal(t, int32(1), good.calls.Load())
}

func TestVerifyRemote_AllEndpointsFail(t *testing.T) {
	a := &fakeValidator{status: StatusBackendError}
	b := &fakeValidator{status: StatusBackendError}
	srvA := httptest.NewServer(a)
	defer srvA.Close()
	srvB := httptest.NewServer(b)
	defer srvB.Close()

	err := newTestClient().VerifyRemote(context.Background(), testOTP, request(hostOf(srvA), hostOf(srvB)))

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StatusBackendError, verr.Status)
	assert.Equal(t, int32(1), a.calls.Load(), "each endpoint is tried once")
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestVerifyRemote_RejectsForgedResponse(t *testing.T) {
	tests := []struct {
		name       string
		tamper     func(map[string]string)
		wantStatus string
	}{
		{"bad signature", func(f map[string]string) { f["h"] = base64.StdEncoding.EncodeToString([]byte("forged")) }, StatusResponseSignature},
		{"missing signature", func(f map[string]string) { delete(f, "h") }, StatusResponseSignature},
		{"status flipped after signing", func(f map[string]string) { f["status"] = StatusOK }, StatusResponseSignature},
		{"nonce not echoed", func(f map[string]string) {
			f["nonce"] = "00000000000000000000000000000000"
			delete(f, "h")
			f["h"] = sign(testKey, f)
		}, StatusResponseMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeValidator{status: StatusBadOTP, tamper: tt.tamper}
			if tt.wantStatus == StatusResponseMismatch {
				fake.status = StatusOK
			}
			srv := httptest.NewServer(fake)
			defer srv.Close()

			err := newTestClient().VerifyRemote(context.Background(), testOTP, request(hostOf(srv)))

			var verr *VerificationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantStatus, verr.Status)
		})
	}
}

func TestVerifyRemote_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	err := newTestClient().VerifyRemote(context.Background(), testOTP, request(hostOf(srv)))

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StatusMalformedResponse, verr.Status)
}

func TestVerifyRemote_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := newTestClient().VerifyRemote(ctx, testOTP, request(hostOf(srv)))

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StatusTimeout, verr.Status)
}

func TestVerifyRemote_InvalidSecret(t *testing.T) {
	req := request("127.0.0.1:1/verify")
	req.ClientSecret = "not base64!"

	err := newTestClient().VerifyRemote(context.Background(), testOTP, req)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StatusBadClientSecret, verr.Status)
}

func TestEndpoints(t *testing.T) {
	c := newTestClient()

	secure := c.endpoints(VerifyRequest{UseSecureTransport: true})
	assert.Len(t, secure, len(DefaultURLs))
	assert.Equal(t, "https://api.yubico.com/wsapi/2.0/verify", secure[0])

	override := c.endpoints(VerifyRequest{OverrideURLs: []string{"https://otp.example.com/verify", "otp2.example.com/verify"}})
	assert.Equal(t, []string{"http://otp.example.com/verify", "http://otp2.example.com/verify"}, override)
}

func TestSign_OrderIndependent(t *testing.T) {
	a := sign([]byte("key"), map[string]string{"b": "2", "a": "1"})
	b := sign([]byte("key"), map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, sign([]byte("other"), map[string]string{"a": "1", "b": "2"}))
}
