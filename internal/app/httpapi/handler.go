package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	app "github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/achievement"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/domain/protocol"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/metrics"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/middleware"
)

// requireOwner rejects requests where an authenticated caller acts on
// another owner's vault. Requests without caller identity pass through;
// deployments that need the check run behind the auth middleware.
func requireOwner(w http.ResponseWriter, r *http.Request, owner string) bool {
	if caller := middleware.CallerOwner(r.Context()); caller != "" && caller != owner {
		writeError(w, http.StatusForbidden, protocol.ErrUnauthorized)
		return false
	}
	return true
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/config", h.config)
	mux.HandleFunc("/config/", h.configActions)
	mux.HandleFunc("/passes", h.passes)
	mux.HandleFunc("/vaults", h.vaults)
	mux.HandleFunc("/vaults/", h.vaultResources)
	mux.HandleFunc("/leaderboard", h.leaderboard)
	mux.HandleFunc("/achievements/", h.achievements)
	mux.HandleFunc("/harvest/run", h.harvestRun)
	mux.HandleFunc("/healthz", h.healthz)
	return mux
}

func (h *handler) config(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Authority          string `json:"authority"`
			BaseAPYBps         uint16 `json:"base_apy_bps"`
			BoostMultiplierBps uint16 `json:"boost_multiplier_bps"`
			SoulsPerUnit       uint64 `json:"souls_per_unit"`
			UnitsPerToken      uint64 `json:"units_per_token"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cfg, err := h.app.Vaults.Initialize(r.Context(), protocol.Config{
			Authority:          payload.Authority,
			BaseAPYBps:         payload.BaseAPYBps,
			BoostMultiplierBps: payload.BoostMultiplierBps,
			SoulsPerUnit:       payload.SoulsPerUnit,
			UnitsPerToken:      payload.UnitsPerToken,
		})
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, cfg)

	case http.MethodGet:
		cfg, err := h.app.Vaults.Config(r.Context())
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}
		metrics.SetTotalTVL(cfg.TotalTVL)
		writeJSON(w, http.StatusOK, configView(cfg))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) configActions(w http.ResponseWriter, r *http.Request) {
	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/config"), "/")
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var paused bool
	switch action {
	case "pause":
		paused = true
	case "resume":
		paused = false
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var payload struct {
		Authority string `json:"authority"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg, err := h.app.Vaults.SetPaused(r.Context(), payload.Authority, paused)
	if err != nil {
		writeError(w, statusFromError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, configView(cfg))
}

func (h *handler) passes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Authority string `json:"authority"`
		Owner     string `json:"owner"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Vaults.IssueBoostPass(r.Context(), payload.Authority, payload.Owner); err != nil {
		writeError(w, statusFromError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"owner": payload.Owner})
}

func (h *handler) vaults(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		owner := r.URL.Query().Get("owner")
		if owner == "" {
			writeError(w, http.StatusBadRequest, errors.New("owner query parameter required"))
			return
		}
		accounts, err := h.app.Vaults.ListVaults(r.Context(), owner)
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Owner  string `json:"owner"`
		Asset  string `json:"asset"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !requireOwner(w, r, payload.Owner) {
		return
	}

	acct, err := h.app.Vaults.CreateVault(r.Context(), payload.Owner, payload.Asset, payload.Amount)
	metrics.RecordLedgerOperation("create_vault", err)
	if err != nil {
		writeError(w, statusFromError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *handler) vaultResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/vaults"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	owner, asset := parts[0], parts[1]

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			acct, err := h.app.Vaults.Vault(r.Context(), owner, asset)
			if err != nil {
				writeError(w, statusFromError(err), err)
				return
			}
			writeJSON(w, http.StatusOK, acct)
		case http.MethodDelete:
			if !requireOwner(w, r, owner) {
				return
			}
			err := h.app.Vaults.Close(r.Context(), owner, asset)
			metrics.RecordLedgerOperation("close_vault", err)
			if err != nil {
				writeError(w, statusFromError(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) != 3 || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !requireOwner(w, r, owner) {
		return
	}

	switch parts[2] {
	case "withdraw":
		var payload struct {
			Amount uint64 `json:"amount"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		acct, err := h.app.Vaults.Withdraw(r.Context(), owner, asset, payload.Amount)
		metrics.RecordLedgerOperation("withdraw", err)
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, acct)

	case "compound":
		acct, err := h.app.Vaults.Compound(r.Context(), owner, asset)
		metrics.RecordLedgerOperation("compound", err)
		if err != nil {
			writeError(w, statusFromError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, acct)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	entries, err := h.app.Leaderboards.RankedEntries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) achievements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	owner := strings.Trim(strings.TrimPrefix(r.URL.Path, "/achievements"), "/")
	if owner == "" || strings.Contains(owner, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	st, err := h.app.Achievements.State(r.Context(), owner)
	if err != nil {
		writeError(w, statusFromError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, achievementView(st))
}

func (h *handler) harvestRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	summary, err := h.app.Harvest.Run(r.Context(), time.Time{})
	metrics.RecordHarvestRun(summary.Succeeded, summary.Failed, time.Since(start), err)
	if err != nil {
		writeError(w, statusFromError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func configView(cfg protocol.Config) map[string]any {
	return map[string]any{
		"authority":            cfg.Authority,
		"base_apy_bps":         cfg.BaseAPYBps,
		"current_apy_bps":      cfg.CurrentAPYBps(),
		"boost_multiplier_bps": cfg.BoostMultiplierBps,
		"souls_per_unit":       cfg.SoulsPerUnit,
		"units_per_token":      cfg.UnitsPerToken,
		"total_tvl":            cfg.TotalTVL,
		"boost_pass_supply":    cfg.BoostPassSupply,
		"paused":               cfg.Paused,
	}
}

func achievementView(st achievement.State) map[string]any {
	unlocked := make([]map[string]any, 0, st.CountUnlocked())
	for i := 0; i < achievement.Count; i++ {
		a := achievement.Achievement(i)
		if st.Has(a) {
			unlocked = append(unlocked, map[string]any{
				"name":   a.Name(),
				"points": a.Points(),
			})
		}
	}
	rank := st.CurrentRank()
	return map[string]any{
		"owner":             st.Owner,
		"points":            st.Points,
		"rank":              rank.Name(),
		"rank_bonus_bps":    rank.BonusBps(),
		"unlocked_count":    st.CountUnlocked(),
		"unlocked":          unlocked,
		"streak_days":       st.StreakDays,
		"total_compounds":   st.TotalCompounds,
		"midnight_harvests": st.MidnightHarvestCount,
		"charity_donated":   st.CharityDonated,
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, protocol.ErrVaultExists),
		errors.Is(err, protocol.ErrAlreadyInitialized),
		errors.Is(err, protocol.ErrNonZeroBalance),
		errors.Is(err, protocol.ErrVaultInactive),
		errors.Is(err, protocol.ErrSupplyExhausted),
		errors.Is(err, protocol.ErrPaused):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrInsufficientBalance),
		errors.Is(err, protocol.ErrInsufficientFunds),
		errors.Is(err, protocol.ErrInvalidDepositAmount):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrClockRegression),
		errors.Is(err, protocol.ErrArithmeticOverflow):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
