// Command licensing-stub is a local development server implementing the
// licensing and content API the SDK talks to. Licenses and assets are
// described by a YAML fixture file; activation state is kept in memory
// and reset on restart.
//
// It exists so plugin builds can be exercised end to end without a real
// licensing backend:
//
//	licensing-stub -addr :8787 -fixtures fixtures.yml
//	BEATCONNECT_API_BASE_URL=http://localhost:8787 beatconnect-activate activate <code>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

func main() {
	addr := flag.String("addr", ":8787", "listen address")
	fixturesPath := flag.String("fixtures", "fixtures.yml", "path to the YAML fixture file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With(
		slog.String("component", "licensing_stub"),
	)

	fixtures, err := loadFixtures(*fixturesPath)
	if err != nil {
		logger.Error("failed to load fixtures",
			slog.String("path", *fixturesPath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("fixtures loaded",
		slog.Int("licenses", len(fixtures.Licenses)),
		slog.Int("assets", len(fixtures.Assets)))

	srv := newServer(fixtures, logger)
	logger.Info("listening", slog.String("addr", *addr))
	if err := http.ListenAndServe(*addr, srv.routes()); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// fixtureFile is the on-disk shape of the stub's configuration.
type fixtureFile struct {
	Licenses []licenseFixture `yaml:"licenses"`
	Assets   []assetFixture   `yaml:"assets"`
}

type licenseFixture struct {
	Code           string `yaml:"code"`
	PluginID       string `yaml:"plugin_id"`
	MaxActivations int    `yaml:"max_activations"`
	Revoked        bool   `yaml:"revoked"`
}

type assetFixture struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	MimeType string `yaml:"mime_type"`
	Path     string `yaml:"path"`
	Checksum string `yaml:"checksum"`
}

func loadFixtures(path string) (*fixtureFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid fixture file: %w", err)
	}
	for i := range f.Licenses {
		if f.Licenses[i].Code == "" {
			f.Licenses[i].Code = uuid.NewString()
		}
		if f.Licenses[i].MaxActivations <= 0 {
			f.Licenses[i].MaxActivations = 3
		}
	}
	return &f, nil
}

type server struct {
	logger   *slog.Logger
	licenses map[string]licenseFixture
	assets   map[string]assetFixture

	mu    sync.Mutex
	seats map[string]map[string]string // code -> machine id -> activated at
}

func newServer(f *fixtureFile, logger *slog.Logger) *server {
	s := &server{
		logger:   logger,
		licenses: make(map[string]licenseFixture),
		assets:   make(map[string]assetFixture),
		seats:    make(map[string]map[string]string),
	}
	for _, lic := range f.Licenses {
		s.licenses[lic.Code] = lic
		logger.Info("license available",
			slog.String("code", lic.Code),
			slog.Int("max_activations", lic.MaxActivations),
			slog.Bool("revoked", lic.Revoked))
	}
	for _, a := range f.Assets {
		s.assets[a.ID] = a
	}
	return s
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/activate", s.handleActivate)
	r.Post("/deactivate", s.handleDeactivate)
	r.Post("/validate", s.handleValidate)

	r.Get("/content/{assetID}/info", s.handleAssetInfo)
	r.Get("/content/{assetID}/download-url", s.handleDownloadURL)
	r.Get("/files/{assetID}", s.handleFile)

	return r
}

// activationRequest matches the SDK's wire format.
type activationRequest struct {
	Code      string `json:"code"`
	PluginID  string `json:"plugin_id"`
	MachineID string `json:"machine_id"`
}

func (s *server) decodeRequest(w http.ResponseWriter, r *http.Request) (activationRequest, bool) {
	var req activationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, map[string]any{"error": "Invalid request body"})
		return req, false
	}
	if req.Code == "" || req.MachineID == "" {
		render.JSON(w, r, map[string]any{"error": "Invalid activation code"})
		return req, false
	}
	return req, true
}

func (s *server) handleActivate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	lic, found := s.licenses[req.Code]
	if !found {
		s.logger.Info("activate rejected", slog.String("reason", "unknown code"))
		render.JSON(w, r, map[string]any{"error": "Invalid activation code"})
		return
	}
	if lic.Revoked {
		render.JSON(w, r, map[string]any{"error": "License revoked"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	machines := s.seats[req.Code]
	if machines == nil {
		machines = make(map[string]string)
		s.seats[req.Code] = machines
	}

	activatedAt, alreadyActive := machines[req.MachineID]
	if !alreadyActive {
		if len(machines) >= lic.MaxActivations {
			render.JSON(w, r, map[string]any{"error": "Maximum activations reached"})
			return
		}
		activatedAt = time.Now().UTC().Format(time.RFC3339)
		machines[req.MachineID] = activatedAt
	}

	s.logger.Info("activated",
		slog.String("code", req.Code),
		slog.Int("seats_used", len(machines)),
		slog.Int("seats_max", lic.MaxActivations))
	render.JSON(w, r, map[string]any{
		"activated_at":        activatedAt,
		"current_activations": len(machines),
		"max_activations":     lic.MaxActivations,
	})
}

func (s *server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	machines := s.seats[req.Code]
	if _, active := machines[req.MachineID]; !active {
		render.JSON(w, r, map[string]any{"error": "Invalid activation code"})
		return
	}
	delete(machines, req.MachineID)

	s.logger.Info("deactivated",
		slog.String("code", req.Code),
		slog.Int("seats_used", len(machines)))
	render.JSON(w, r, map[string]any{
		"current_activations": len(machines),
	})
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	lic, found := s.licenses[req.Code]
	if !found {
		render.JSON(w, r, map[string]any{"valid": false})
		return
	}
	if lic.Revoked {
		render.JSON(w, r, map[string]any{"valid": false, "error": "License revoked"})
		return
	}

	s.mu.Lock()
	_, active := s.seats[req.Code][req.MachineID]
	s.mu.Unlock()

	render.JSON(w, r, map[string]any{"valid": active})
}

func (s *server) handleAssetInfo(w http.ResponseWriter, r *http.Request) {
	asset, found := s.assets[chi.URLParam(r, "assetID")]
	if !found {
		render.JSON(w, r, map[string]any{"error": "asset not found"})
		return
	}

	var size int64
	if fi, err := os.Stat(asset.Path); err == nil {
		size = fi.Size()
	}
	render.JSON(w, r, map[string]any{
		"name":      asset.Name,
		"type":      asset.Type,
		"mime_type": asset.MimeType,
		"file_size": size,
		"checksum":  asset.Checksum,
	})
}

func (s *server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	if _, found := s.assets[assetID]; !found {
		render.JSON(w, r, map[string]any{"error": "asset not found"})
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	render.JSON(w, r, map[string]any{
		"url": fmt.Sprintf("%s://%s/files/%s", scheme, r.Host, assetID),
	})
}

// handleFile serves fixture content; http.ServeFile gives the Range
// support the downloader's resume path depends on.
func (s *server) handleFile(w http.ResponseWriter, r *http.Request) {
	asset, found := s.assets[chi.URLParam(r, "assetID")]
	if !found {
		http.NotFound(w, r)
		return
	}
	if asset.MimeType != "" {
		w.Header().Set("Content-Type", asset.MimeType)
	}
	http.ServeFile(w, r, filepath.Clean(asset.Path))
}
