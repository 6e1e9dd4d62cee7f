package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// urlSigner produces V2 signed URLs with the service account's RSA key.
// Metadata-server deployments have no private key and cannot sign.
type urlSigner struct {
	email string
	key   *rsa.PrivateKey
}

// SignedUploadURL returns a PUT URL the browser can use to upload one object
// directly to the bucket. The content type is part of the signature, so the
// client must send it verbatim.
func (c *Client) SignedUploadURL(object, contentType string, ttl time.Duration) (string, error) {
	return c.signedURL(http.MethodPut, object, contentType, ttl)
}

// SignedReadURL returns a short-lived GET URL for one object.
func (c *Client) SignedReadURL(object string, ttl time.Duration) (string, error) {
	return c.signedURL(http.MethodGet, object, "", ttl)
}

func (c *Client) signedURL(method, object, contentType string, ttl time.Duration) (string, error) {
	if c == nil || c.signer == nil {
		return "", errors.New("url signing requires service account credentials")
	}
	if object == "" {
		return "", errors.New("object name is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	expires := time.Now().Add(ttl).Unix()
	resource := "/" + c.defaultBucket + "/" + object

	signature, err := c.signer.sign(method, contentType, resource, expires)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("GoogleAccessId", c.signer.email)
	q.Set("Expires", fmt.Sprintf("%d", expires))
	q.Set("Signature", signature)

	return fmt.Sprintf(
		"%s/%s/%s?%s",
		storageHost,
		url.PathEscape(c.defaultBucket),
		escapeObjectPath(object),
		q.Encode(),
	), nil
}

func (s *urlSigner) sign(method, contentType, resource string, expires int64) (string, error) {
	stringToSign := strings.Join([]string{
		method,
		"", // content MD5 is not enforced
		contentType,
		fmt.Sprintf("%d", expires),
		resource,
	}, "\n")

	digest := sha256.Sum256([]byte(stringToSign))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing url: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// escapeObjectPath escapes each path segment but keeps the slashes so that
// nested object names stay readable.
func escapeObjectPath(object string) string {
	parts := strings.Split(object, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func parsePrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("no PEM block in private key")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not RSA")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key, nil
}

func fetchServiceAccountToken(
	ctx context.Context,
	client *http.Client,
	email string,
	key *rsa.PrivateKey,
	tokenURI string,
) (string, time.Time, error) {
	now := time.Now()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{
		"iss":   email,
		"scope": scope,
		"aud":   tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}

	signingInput := header + "." + base64.RawURLEncoding.EncodeToString(claims)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token assertion: %w", err)
	}
	assertion := signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", time.Time{}, fmt.Errorf("token exchange returned %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", time.Time{}, err
	}
	if tokenResp.AccessToken == "" {
		return "", time.Time{}, errors.New("token exchange returned empty access token")
	}

	return tokenResp.AccessToken, now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second), nil
}
