package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

const (
	testL1 = 5
	testL2 = 1001
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func logic(scope registry.Scope, name string, n byte) registry.LogicRecord {
	return registry.LogicRecord{
		Scope:        scope,
		CodeHash:     common.BytesToHash([]byte{n}),
		Address:      common.BytesToAddress([]byte{0xa0, n}),
		ContractName: name,
	}
}

func seededStore(t *testing.T) *registry.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := registry.NewMemoryStore()

	l1 := registry.L1Scope(testL1)
	l2 := registry.L2Scope(testL1, testL2)
	am1, am2 := logic(l1, "AddressManager", 1), logic(l1, "AddressManager", 2)
	rollup := logic(l2, "L2Rollup", 3)

	require.NoError(t, store.SaveLogics(ctx, am1, am2, rollup))
	require.NoError(t, store.SaveBundle(ctx, &registry.VersionedBundle{Scope: l1, Version: 1, Roles: map[string]registry.LogicRecord{"AddressManager": am1}}, false))
	require.NoError(t, store.SaveBundle(ctx, &registry.VersionedBundle{Scope: l1, Version: 2, Roles: map[string]registry.LogicRecord{"AddressManager": am2}}, false))
	require.NoError(t, store.SaveBundle(ctx, &registry.VersionedBundle{Scope: l2, Version: 1, Roles: map[string]registry.LogicRecord{"L2Rollup": rollup}}, false))
	require.NoError(t, store.SaveRollup(ctx, &registry.RollupInstance{
		L1ChainID: testL1,
		L2ChainID: testL2,
		Version:   1,
		L1Proxies: registry.ProxySet{"AddressManager": common.HexToAddress("0x01")},
		L2Proxies: registry.ProxySet{"L2Rollup": common.HexToAddress("0x4200000000000000000000000000000000000002")},
	}))
	require.NoError(t, store.SaveGenesis(ctx, &registry.GenesisRecord{
		L1ChainID: testL1,
		L2ChainID: testL2,
		Hash:      common.HexToHash("0xabcd"),
		Genesis: &core.Genesis{
			Config:   &params.ChainConfig{ChainID: big.NewInt(testL2)},
			GasLimit: 30_000_000,
			Alloc:    types.GenesisAlloc{},
		},
	}))
	return store
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestRegistryHandler_Rollups(t *testing.T) {
	h := NewRouter(seededStore(t), discard, nil)

	rec := serve(t, h, "/v1/rollups")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeData[[]registry.RollupInstance](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(testL2), list[0].L2ChainID)

	rec = serve(t, h, fmt.Sprintf("/v1/rollups/%d/%d", testL1, testL2))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[registry.RollupInstance](t, rec)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, common.HexToAddress("0x01"), got.L1Proxies["AddressManager"])

	rec = serve(t, h, fmt.Sprintf("/v1/rollups/%d/%d", testL1, 9999))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestRegistryHandler_EmptyList(t *testing.T) {
	h := NewRouter(registry.NewMemoryStore(), discard, nil)

	rec := serve(t, h, "/v1/rollups")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"meta":{"total":0}}`, rec.Body.String())
}

func TestRegistryHandler_Genesis(t *testing.T) {
	h := NewRouter(seededStore(t), discard, nil)

	rec := serve(t, h, fmt.Sprintf("/v1/rollups/%d/%d/genesis", testL1, testL2))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Hash    common.Hash     `json:"hash"`
			Genesis json.RawMessage `json:"genesis"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, common.HexToHash("0xabcd"), body.Data.Hash)
	assert.Contains(t, string(body.Data.Genesis), `"gasLimit":"0x1c9c380"`)
}

func TestRegistryHandler_Bundles(t *testing.T) {
	h := NewRouter(seededStore(t), discard, nil)

	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantVersion uint64
		wantRole    string
	}{
		{"l1 exact", fmt.Sprintf("/v1/bundles/l1/%d/1", testL1), http.StatusOK, 1, "AddressManager"},
		{"l1 latest", fmt.Sprintf("/v1/bundles/l1/%d/latest", testL1), http.StatusOK, 2, "AddressManager"},
		{"l2 latest", fmt.Sprintf("/v1/bundles/l2/%d/%d/latest", testL1, testL2), http.StatusOK, 1, "L2Rollup"},
		{"unknown version", fmt.Sprintf("/v1/bundles/l1/%d/7", testL1), http.StatusNotFound, 0, ""},
		{"zero version", fmt.Sprintf("/v1/bundles/l1/%d/0", testL1), http.StatusBadRequest, 0, ""},
		{"bad version", fmt.Sprintf("/v1/bundles/l1/%d/v1", testL1), http.StatusBadRequest, 0, ""},
		{"bad chain", "/v1/bundles/l1/sepolia/1", http.StatusBadRequest, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, tt.path)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			b := decodeData[registry.VersionedBundle](t, rec)
			assert.Equal(t, tt.wantVersion, b.Version)
			assert.Contains(t, b.Roles, tt.wantRole)
		})
	}
}

func TestRegistryHandler_Logics(t *testing.T) {
	h := NewRouter(seededStore(t), discard, nil)
	l1Hash := common.BytesToHash([]byte{1}).Hex()
	l2Hash := common.BytesToHash([]byte{3}).Hex()

	rec := serve(t, h, fmt.Sprintf("/v1/logics/l1/%d/%s", testL1, l1Hash))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[registry.LogicRecord](t, rec)
	assert.Equal(t, "AddressManager", got.ContractName)
	assert.Equal(t, common.BytesToAddress([]byte{0xa0, 1}), got.Address)

	rec = serve(t, h, fmt.Sprintf("/v1/logics/l2/%d/%d/%s", testL1, testL2, l2Hash))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "L2Rollup", decodeData[registry.LogicRecord](t, rec).ContractName)

	// L2 records are not visible under the L1 scope.
	rec = serve(t, h, fmt.Sprintf("/v1/logics/l1/%d/%s", testL1, l2Hash))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, fmt.Sprintf("/v1/logics/l1/%d/0x1234", testL1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type brokenStore struct {
	registry.Store
	err error
}

func (s brokenStore) ListRollups(context.Context) ([]*registry.RollupInstance, error) {
	return nil, s.err
}

func TestRegistryHandler_StoreFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"corrupted", fmt.Errorf("%w: rollup_contracts.json", registry.ErrStoreCorrupted), http.StatusServiceUnavailable, "service_unavailable"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(brokenStore{err: tt.err}, discard, nil)

			rec := serve(t, h, "/v1/rollups")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestRouter_Health(t *testing.T) {
	h := NewRouter(registry.NewMemoryStore(), discard, nil)

	rec := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"status":"ok"}}`, rec.Body.String())

	rec = serve(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
