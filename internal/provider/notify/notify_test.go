package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFCM_SendToDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key=server-key" {
			t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
		}
		var p fcmPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		if p.To != "device-1" || p.Notification.Title != "Driver arrived" || p.Data["ride_id"] != "r1" {
			t.Errorf("unexpected payload %+v", p)
		}
		_, _ = w.Write([]byte(`{"success":1,"results":[{"message_id":"m-1"}]}`))
	}))
	defer srv.Close()

	id, err := NewFCM(srv.URL, "server-key", time.Second).
		SendToDevice(context.Background(), "device-1", "Driver arrived", "Your driver is outside", map[string]string{"ride_id": "r1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "m-1" {
		t.Errorf("expected m-1, got %s", id)
	}
}

func TestFCM_RejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":0,"results":[{"error":"NotRegistered"}]}`))
	}))
	defer srv.Close()

	if _, err := NewFCM(srv.URL, "k", time.Second).SendToDevice(context.Background(), "stale", "t", "b", nil); err == nil {
		t.Fatal("expected error for unregistered token")
	}
}

func TestSMS_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC1/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "token" {
			t.Error("missing basic auth")
		}
		_ = r.ParseForm()
		if r.PostForm.Get("To") != "+2348000000000" || r.PostForm.Get("Body") != "SOS" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ok, err := NewSMS(srv.URL, "AC1", "token", "+100", time.Second).Send(context.Background(), "+2348000000000", "SOS")
	if err != nil || !ok {
		t.Fatalf("expected success, got %v %v", ok, err)
	}
}
