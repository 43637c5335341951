package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"mourne/internal/domain"
	"mourne/internal/domain/jsoncfg"
)

type capabilityUpdate struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// Credential nil keeps the stored credential while the provider is
	// unchanged; an empty string clears it.
	Credential *string `json:"credential"`
}

type configRequest struct {
	Capabilities map[string]capabilityUpdate `json:"capabilities"`
}

type configResponse struct {
	Version      string                           `json:"version"`
	Capabilities map[string]jsoncfg.RedactedEntry `json:"capabilities"`
}

func (a *App) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.Config.Load(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, configResponse{Version: jsoncfg.DefaultDocumentVersion, Capabilities: jsoncfg.Redact(cfg)})
}

// PutConfig merges the submitted selections into the stored config and
// saves it atomically.
func (a *App) PutConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.Capabilities) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "capabilities are required")
		return
	}
	keys := make([]string, 0, len(req.Capabilities))
	for k := range req.Capabilities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg, err := a.Config.Update(r.Context(), func(cfg *domain.ProviderConfig) error {
		if cfg.Capabilities == nil {
			cfg.Capabilities = make(map[domain.Capability]domain.CapabilityConfig)
		}
		for _, k := range keys {
			capability, err := domain.ParseCapability(k)
			if err != nil {
				return err
			}
			upd := req.Capabilities[k]
			cur := cfg.Capabilities[capability]
			next := cur
			if p := strings.ToLower(strings.TrimSpace(upd.Provider)); p != "" {
				next.Provider = p
			}
			info, ok := a.Registry.Lookup(capability, next.Provider)
			if !ok {
				return fmt.Errorf("%w: provider %q does not support %s", domain.ErrInvalidInput, next.Provider, capability)
			}
			switch m := strings.TrimSpace(upd.Model); {
			case m != "":
				next.Model = m
			case next.Provider != cur.Provider:
				next.Model = info.DefaultModel
			}
			switch {
			case upd.Credential != nil:
				next.Credential = strings.TrimSpace(*upd.Credential)
			case next.Provider != cur.Provider:
				next.Credential = ""
			}
			cfg.Capabilities[capability] = next
		}
		return nil
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, configResponse{Version: jsoncfg.DefaultDocumentVersion, Capabilities: jsoncfg.Redact(cfg)})
}

func (a *App) Providers(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": a.Registry.Catalog()})
}
