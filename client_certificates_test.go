package techmate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestIssueCertificate(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/certificates/issue/" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body struct {
			TutorialID int64 `json:"tutorial_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TutorialID != 5 {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"error": "tutorial_id required"})
			return
		}
		writeJSON(t, w, http.StatusCreated, Certificate{
			ID:                1,
			TutorialTitle:     "Intro to Go",
			CertificateNumber: "CERT-2026-0001",
		})
	})
	client := newTestClient(t, handler)
	seedSession(t, client, testUser(), testAccess, testRefresh)

	cert, err := client.IssueCertificate(context.Background(), 5)
	if err != nil {
		t.Fatalf("issue certificate: %v", err)
	}
	if cert.CertificateNumber != "CERT-2026-0001" {
		t.Fatalf("certificate number = %q", cert.CertificateNumber)
	}
}

func TestIssueCertificateIncompleteTutorialRejected(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"error":      "Tutorial not fully completed",
			"percentage": 40.0,
		})
	})
	client := newTestClient(t, handler)
	seedSession(t, client, testUser(), testAccess, testRefresh)

	_, err := client.IssueCertificate(context.Background(), 5)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
	if apiErr.Message != "Tutorial not fully completed" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestDownloadCertificateStreamsRawBytes(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake body")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/certificates/1/download/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdf)
	})
	client := newTestClient(t, handler)
	seedSession(t, client, testUser(), testAccess, testRefresh)

	var buf bytes.Buffer
	if err := client.DownloadCertificate(context.Background(), 1, &buf); err != nil {
		t.Fatalf("download certificate: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), pdf) {
		t.Fatalf("downloaded %d bytes, want %d", buf.Len(), len(pdf))
	}
}

func TestCertificatesList(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []Certificate{
			{ID: 1, CertificateNumber: "CERT-2026-0001"},
			{ID: 2, CertificateNumber: "CERT-2026-0002"},
		})
	})
	client := newTestClient(t, handler)
	seedSession(t, client, testUser(), testAccess, testRefresh)

	certs, err := client.Certificates(context.Background())
	if err != nil {
		t.Fatalf("list certificates: %v", err)
	}
	if len(certs) != 2 {
		t.Fatalf("got %d certificates", len(certs))
	}
}
