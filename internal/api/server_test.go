package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspector/internal/abiprovider"
	"inspector/internal/analyzer"
	"inspector/internal/chain"
	"inspector/internal/config"
	"inspector/internal/proxy"
	"inspector/internal/state"
)

// mockChain 测试用链客户端：单个普通合约，totalSupply固定返回空
type mockChain struct {
	code map[common.Address][]byte
}

var _ chain.Client = (*mockChain)(nil)

func (m *mockChain) GetCode(ctx context.Context, address common.Address, blockNumber uint64) ([]byte, error) {
	return m.code[address], nil
}

func (m *mockChain) GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, blockNumber uint64) ([]byte, error) {
	return make([]byte, 32), nil
}

func (m *mockChain) Call(ctx context.Context, address common.Address, data []byte, blockNumber uint64) ([]byte, error) {
	return nil, errors.New("execution reverted")
}

func (m *mockChain) LatestBlock(ctx context.Context) (uint64, error) {
	return 1000, nil
}

var contractAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	mc := &mockChain{code: map[common.Address][]byte{
		contractAddr: {0x60, 0x80, 0x60, 0x40},
	}}

	resolver := proxy.NewResolver(mc, &config.ResolverConfig{MaxDepth: proxy.DefaultMaxDepth}, logger)
	reader := state.NewReader(mc, &config.ReaderConfig{Workers: 2, CallTimeout: "2s"}, logger)
	a := analyzer.NewAnalyzer(mc, resolver, abiprovider.NewStaticProvider(nil), reader, nil, logger)

	server := NewServer(config.GetDefaultConfig(), a, logger, 0)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	server.setupRoutes(router)
	return router
}

func doRequest(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestServer_Health(t *testing.T) {
	recorder := doRequest(t, testRouter(t), "/health")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "healthy")
}

func TestServer_ResolveOK(t *testing.T) {
	recorder := doRequest(t, testRouter(t), "/api/v1/resolve/"+contractAddr.Hex()+"?block=100")

	assert.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "unknown", body["standard"])
	assert.Equal(t, float64(100), body["resolved_at_block"])
}

func TestServer_InvalidAddress(t *testing.T) {
	recorder := doRequest(t, testRouter(t), "/api/v1/resolve/not-an-address")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "INVALID_ADDRESS")
}

func TestServer_InvalidBlockRef(t *testing.T) {
	recorder := doRequest(t, testRouter(t), "/api/v1/resolve/"+contractAddr.Hex()+"?block=abc")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestServer_SnapshotWithoutABI(t *testing.T) {
	recorder := doRequest(t, testRouter(t), "/api/v1/snapshot/"+contractAddr.Hex()+"?block=100")

	// 无ABI时快照不可用
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestServer_Status(t *testing.T) {
	recorder := doRequest(t, testRouter(t), "/api/v1/status")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "error_stats")
}
