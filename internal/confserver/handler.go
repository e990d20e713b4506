// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package confserver

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"github.com/MKhiriev/go-settings/internal/logger"
)

// maxTimestampSkew bounds how old a signed request may be.
const maxTimestampSkew = 90 * time.Second

// Handler serves namespace configurations over the HTTP API the remote
// source speaks:
//
//	GET /configs/{appID}/{cluster}/{namespace}?releaseKey=...
type Handler struct {
	cfg Config
	log *logger.Logger
}

func NewHandler(cfg Config, log *logger.Logger) *Handler {
	return &Handler{cfg: cfg, log: log}
}

// Init builds the router.
func (h *Handler) Init() chi.Router {
	r := chi.NewRouter()
	r.Use(h.withLogger)
	r.Get("/configs/{appID}/{cluster}/{namespace}", h.getNamespace)
	return r
}

func (h *Handler) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := h.log.WithContext(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type namespacePayload struct {
	AppID          string         `json:"appId"`
	Cluster        string         `json:"cluster"`
	NamespaceName  string         `json:"namespaceName"`
	Configurations map[string]any `json:"configurations"`
	ReleaseKey     string         `json:"releaseKey"`
}

func (h *Handler) getNamespace(w http.ResponseWriter, r *http.Request) {
	log := logger.FromRequest(r)

	appID := chi.URLParam(r, "appID")
	cluster := chi.URLParam(r, "cluster")
	namespace := chi.URLParam(r, "namespace")

	if h.cfg.Secret != "" {
		if err := h.authenticate(r, appID); err != nil {
			log.Warn().Err(err).Str("app_id", appID).Msg("rejected request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	configurations, releaseKey, err := h.loadNamespace(namespace)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "namespace not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("namespace", namespace).Msg("cannot load namespace")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("releaseKey") == releaseKey {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(namespacePayload{
		AppID:          appID,
		Cluster:        cluster,
		NamespaceName:  namespace,
		Configurations: configurations,
		ReleaseKey:     releaseKey,
	}); err != nil {
		log.Error().Err(err).Msg("cannot write response")
	}
}

// loadNamespace reads "<namespace>.yaml" from the data directory and
// flattens it into property-style dotted keys. The release key is a digest
// of the raw document, so clients can skip unchanged payloads.
func (h *Handler) loadNamespace(namespace string) (map[string]any, string, error) {
	path := filepath.Join(h.cfg.DataDir, filepath.Base(namespace)+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	var doc map[string]any
	if err = yaml.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", path, err)
	}

	configurations := make(map[string]any)
	flattenInto(configurations, "", doc)

	digest := sha256.Sum256(data)
	return configurations, hex.EncodeToString(digest[:16]), nil
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for key, val := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if child, ok := val.(map[string]any); ok && len(child) > 0 {
			flattenInto(out, full, child)
			continue
		}
		out[full] = val
	}
}

// authenticate accepts either the HMAC request signature
// ("Apollo <appID>:<signature>" plus a Timestamp header) or a bearer token
// signed with the shared secret and issued to appID.
func (h *Handler) authenticate(r *http.Request, appID string) error {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	switch {
	case strings.HasPrefix(auth, "Apollo "):
		return h.verifySignature(r, appID, strings.TrimPrefix(auth, "Apollo "))
	case strings.HasPrefix(auth, "Bearer "):
		return h.verifyBearer(strings.TrimPrefix(auth, "Bearer "), appID)
	default:
		return errors.New("missing authorization")
	}
}

func (h *Handler) verifySignature(r *http.Request, appID, credential string) error {
	id, signature, ok := strings.Cut(credential, ":")
	if !ok || id != appID || signature == "" {
		return errors.New("malformed signature credential")
	}

	millis, err := strconv.ParseInt(r.Header.Get("Timestamp"), 10, 64)
	if err != nil {
		return errors.New("missing or malformed timestamp")
	}
	issued := time.UnixMilli(millis)
	if skew := time.Since(issued).Abs(); skew > maxTimestampSkew {
		return fmt.Errorf("timestamp outside allowed skew: %s", skew)
	}

	stringToSign := r.Header.Get("Timestamp") + "\n" + r.URL.RequestURI()
	mac := hmac.New(sha1.New, []byte(h.cfg.Secret))
	mac.Write([]byte(stringToSign))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("signature mismatch")
	}
	return nil
}

func (h *Handler) verifyBearer(token, appID string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(h.cfg.Secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("parsing bearer token: %w", err)
	}

	issuer, err := parsed.Claims.GetIssuer()
	if err != nil || issuer != appID {
		return errors.New("token issuer does not match app id")
	}
	return nil
}
