package gcs

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func testSigner(t *testing.T) *urlSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return &urlSigner{email: "svc@test.iam.gserviceaccount.com", key: key}
}

func TestSignedUploadURLShape(t *testing.T) {
	client := &Client{defaultBucket: "crewboard-media", signer: testSigner(t)}

	signed, err := client.SignedUploadURL("uploads/abc/photo.jpg", "image/jpeg", 10*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parsing signed url: %v", err)
	}
	if !strings.HasPrefix(signed, storageHost+"/crewboard-media/uploads/abc/photo.jpg?") {
		t.Fatalf("unexpected url prefix: %s", signed)
	}
	q := u.Query()
	if q.Get("GoogleAccessId") != "svc@test.iam.gserviceaccount.com" {
		t.Fatalf("unexpected access id: %s", q.Get("GoogleAccessId"))
	}
	if q.Get("Expires") == "" || q.Get("Signature") == "" {
		t.Fatal("expected Expires and Signature query params")
	}
}

func TestSignedURLSignatureVerifies(t *testing.T) {
	signer := testSigner(t)

	expires := time.Now().Add(time.Minute).Unix()
	sig, err := signer.sign("PUT", "image/png", "/bucket/object.png", expires)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("decoding signature: %v", err)
	}

	stringToSign := strings.Join([]string{
		"PUT", "", "image/png",
		strconv.FormatInt(expires, 10),
		"/bucket/object.png",
	}, "\n")
	digest := sha256.Sum256([]byte(stringToSign))
	if err := rsa.VerifyPKCS1v15(&signer.key.PublicKey, crypto.SHA256, digest[:], raw); err != nil {
		t.Fatalf("signature did not verify: %v", err)
	}
}

func TestSigningWithoutCredentials(t *testing.T) {
	client := &Client{defaultBucket: "crewboard-media"}
	if _, err := client.SignedUploadURL("object", "image/png", time.Minute); err == nil {
		t.Fatal("expected error without a service account key")
	}
}

func TestEscapeObjectPath(t *testing.T) {
	got := escapeObjectPath("uploads/2026 summer/img #1.jpg")
	want := "uploads/2026%20summer/img%20%231.jpg"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
