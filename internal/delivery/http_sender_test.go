package delivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSenderStatusClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   Result
	}{
		{"ok", http.StatusOK, ResultSuccess},
		{"accepted", http.StatusAccepted, ResultSuccess},
		{"bad request", http.StatusBadRequest, ResultPermanent},
		{"not found", http.StatusNotFound, ResultPermanent},
		{"request timeout", http.StatusRequestTimeout, ResultTransient},
		{"rate limited", http.StatusTooManyRequests, ResultTransient},
		{"server error", http.StatusInternalServerError, ResultTransient},
		{"bad gateway", http.StatusBadGateway, ResultTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			sender := NewHTTPSender(srv.URL, "", time.Second)
			got, _ := sender.Send(context.Background(), "+5511999990000", "hello")
			if got != tc.want {
				t.Errorf("status %d classified as %s, want %s", tc.status, got, tc.want)
			}
		})
	}
}

func TestHTTPSenderSignsPayload(t *testing.T) {
	const secret = "gw-secret"
	var gotSig string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Connect-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, secret, time.Second)
	result, err := sender.Send(context.Background(), "+5511999990000", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result != ResultSuccess {
		t.Fatalf("result = %s, want success", result)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %s, want %s", gotSig, want)
	}
}

func TestHTTPSenderTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "", 50*time.Millisecond)
	got, err := sender.Send(context.Background(), "+5511999990000", "hello")
	if got != ResultTransient {
		t.Errorf("timeout classified as %s, want transient", got)
	}
	if err == nil {
		t.Error("expected an error on timeout")
	}
}

func TestHTTPSenderUnreachableGatewayIsTransient(t *testing.T) {
	sender := NewHTTPSender("http://127.0.0.1:1", "", 200*time.Millisecond)
	got, err := sender.Send(context.Background(), "+5511999990000", "hello")
	if got != ResultTransient {
		t.Errorf("connection refusal classified as %s, want transient", got)
	}
	if err == nil {
		t.Error("expected an error")
	}
}
