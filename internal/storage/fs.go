package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const assetAudience = "asset"

var ErrBadSignature = errors.New("invalid or expired asset link")

// FSStore keeps blobs under a base directory. Its signed URLs point at the
// service's own /assets route and carry a short-lived HS256 token.
type FSStore struct {
	base      string
	publicURL string
	secret    []byte
	inline    bool
}

func NewFSStore(base, publicURL, secret string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{
		base:      base,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		secret:    []byte(secret),
		inline:    true,
	}, nil
}

// SetInlineForModel controls whether images reach the model as data URLs.
func (s *FSStore) SetInlineForModel(v bool) { s.inline = v }

func (s *FSStore) InlineForModel() bool { return s.inline }

func (s *FSStore) path(key string) (string, string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, filepath.Join(s.base, filepath.FromSlash(k)), nil
}

func (s *FSStore) Put(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	k, dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return k, nil
}

func (s *FSStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	_, p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	_, p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SignedURL returns PUBLIC_URL/assets/<key>?token=<jwt> valid for ttl.
func (s *FSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   k,
		Audience:  jwt.ClaimStrings{assetAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign asset url: %w", err)
	}
	u := s.publicURL + "/assets/" + (&url.URL{Path: k}).EscapedPath() + "?token=" + url.QueryEscape(signed)
	return u, nil
}

// Verify checks that token was issued by SignedURL for key and has not expired.
func (s *FSStore) Verify(key, token string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(assetAudience), jwt.WithExpirationRequired())
	if err != nil || claims.Subject != k {
		return ErrBadSignature
	}
	return nil
}
