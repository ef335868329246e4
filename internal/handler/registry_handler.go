// Package handler provides the read-only HTTP API over the deployment
// registry.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/go-chi/chi/v5"

	apierrors "github.com/myronchain/ethbeijing-rollup-tools/internal/pkg/errors"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/pkg/response"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

const latestVersion = "latest"

// RegistryHandler serves logic records, bundles, rollups and genesis files.
type RegistryHandler struct {
	store  registry.Store
	logger *slog.Logger
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(store registry.Store, logger *slog.Logger) *RegistryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryHandler{store: store, logger: logger}
}

// Routes returns a chi router with registry routes.
func (h *RegistryHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/rollups", h.ListRollups)
	r.Get("/rollups/{l1}/{l2}", h.GetRollup)
	r.Get("/rollups/{l1}/{l2}/genesis", h.GetGenesis)

	r.Get("/bundles/l1/{l1}/{version}", h.GetL1Bundle)
	r.Get("/bundles/l2/{l1}/{l2}/{version}", h.GetL2Bundle)

	r.Get("/logics/l1/{l1}/{codeHash}", h.GetL1Logic)
	r.Get("/logics/l2/{l1}/{l2}/{codeHash}", h.GetL2Logic)

	return r
}

// GenesisResponse is the body of GET /v1/rollups/{l1}/{l2}/genesis.
type GenesisResponse struct {
	Hash    common.Hash   `json:"hash"`
	Genesis *core.Genesis `json:"genesis"`
}

// ListRollups handles GET /v1/rollups
func (h *RegistryHandler) ListRollups(w http.ResponseWriter, r *http.Request) {
	rollups, err := h.store.ListRollups(r.Context())
	if err != nil {
		h.fail(w, r, err, "Rollup")
		return
	}
	if rollups == nil {
		rollups = []*registry.RollupInstance{}
	}
	response.JSONWithMeta(w, http.StatusOK, rollups, &response.Meta{Total: int64(len(rollups))})
}

// GetRollup handles GET /v1/rollups/{l1}/{l2}
func (h *RegistryHandler) GetRollup(w http.ResponseWriter, r *http.Request) {
	l1, l2, ok := chainPair(w, r)
	if !ok {
		return
	}

	rollup, err := h.store.GetRollup(r.Context(), l1, l2)
	if err != nil {
		h.fail(w, r, err, "Rollup")
		return
	}
	response.OK(w, rollup)
}

// GetGenesis handles GET /v1/rollups/{l1}/{l2}/genesis
func (h *RegistryHandler) GetGenesis(w http.ResponseWriter, r *http.Request) {
	l1, l2, ok := chainPair(w, r)
	if !ok {
		return
	}

	rec, err := h.store.GetGenesis(r.Context(), l1, l2)
	if err != nil {
		h.fail(w, r, err, "Genesis")
		return
	}
	response.OK(w, GenesisResponse{Hash: rec.Hash, Genesis: rec.Genesis})
}

// GetL1Bundle handles GET /v1/bundles/l1/{l1}/{version}
func (h *RegistryHandler) GetL1Bundle(w http.ResponseWriter, r *http.Request) {
	l1, ok := chainID(w, r, "l1")
	if !ok {
		return
	}
	h.getBundle(w, r, registry.L1Scope(l1))
}

// GetL2Bundle handles GET /v1/bundles/l2/{l1}/{l2}/{version}
func (h *RegistryHandler) GetL2Bundle(w http.ResponseWriter, r *http.Request) {
	l1, l2, ok := chainPair(w, r)
	if !ok {
		return
	}
	h.getBundle(w, r, registry.L2Scope(l1, l2))
}

func (h *RegistryHandler) getBundle(w http.ResponseWriter, r *http.Request, scope registry.Scope) {
	raw := chi.URLParam(r, "version")

	var (
		bundle *registry.VersionedBundle
		err    error
	)
	if raw == latestVersion {
		bundle, err = h.store.LatestBundle(r.Context(), scope)
	} else {
		version, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil || version == 0 {
			response.BadRequest(w, "Invalid version")
			return
		}
		bundle, err = h.store.GetBundle(r.Context(), scope, version)
	}
	if err != nil {
		h.fail(w, r, err, "Bundle")
		return
	}
	response.OK(w, bundle)
}

// GetL1Logic handles GET /v1/logics/l1/{l1}/{codeHash}
func (h *RegistryHandler) GetL1Logic(w http.ResponseWriter, r *http.Request) {
	l1, ok := chainID(w, r, "l1")
	if !ok {
		return
	}
	h.getLogic(w, r, registry.L1Scope(l1))
}

// GetL2Logic handles GET /v1/logics/l2/{l1}/{l2}/{codeHash}
func (h *RegistryHandler) GetL2Logic(w http.ResponseWriter, r *http.Request) {
	l1, l2, ok := chainPair(w, r)
	if !ok {
		return
	}
	h.getLogic(w, r, registry.L2Scope(l1, l2))
}

func (h *RegistryHandler) getLogic(w http.ResponseWriter, r *http.Request, scope registry.Scope) {
	raw, err := hexutil.Decode(chi.URLParam(r, "codeHash"))
	if err != nil || len(raw) != common.HashLength {
		response.BadRequest(w, "Invalid code hash")
		return
	}

	rec, err := h.store.GetLogic(r.Context(), scope, common.BytesToHash(raw))
	if err != nil {
		h.fail(w, r, err, "Logic contract")
		return
	}
	response.OK(w, rec)
}

// fail maps registry errors onto API errors. Unexpected errors are logged
// and reported without detail.
func (h *RegistryHandler) fail(w http.ResponseWriter, r *http.Request, err error, resource string) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		response.NotFound(w, resource)
	case errors.Is(err, registry.ErrInvalidRecord):
		response.BadRequest(w, err.Error())
	case errors.Is(err, registry.ErrStoreCorrupted):
		h.logger.Error("registry unreadable", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		response.Error(w, apierrors.ErrServiceUnavailable)
	default:
		h.logger.Error("registry lookup failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		response.InternalError(w)
	}
}

func chainID(w http.ResponseWriter, r *http.Request, param string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, param), 10, 64)
	if err != nil || id == 0 {
		response.Error(w, apierrors.NewValidationError(param, "chain id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func chainPair(w http.ResponseWriter, r *http.Request) (uint64, uint64, bool) {
	l1, ok := chainID(w, r, "l1")
	if !ok {
		return 0, 0, false
	}
	l2, ok := chainID(w, r, "l2")
	if !ok {
		return 0, 0, false
	}
	return l1, l2, true
}
