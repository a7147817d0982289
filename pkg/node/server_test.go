package node

import (
	"context"
	"encoding/json"
	"harnsnode/pkg/apis/response"
	"harnsnode/pkg/drivers/ccu4"
	"harnsnode/pkg/drivers/ccu4/ccu4sim"
	"harnsnode/pkg/link"
	"harnsnode/pkg/runtime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Errors []struct {
		Code    response.ErrCode `json:"code"`
		Message string           `json:"message"`
	} `json:"errors"`
}

func newRouter(t *testing.T) (*gin.Engine, *Node, *ccu4sim.Simulator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sim := newSim(t)
	dead := newSim(t)
	deadURI := dead.URI()
	dead.Close()

	n := newNode(t, WithLinkConfig(
		link.Config{URI: sim.URI(), Timeout: 100 * time.Millisecond},
		link.Config{URI: deadURI, ConnectTimeout: 200 * time.Millisecond},
	))
	ctx := context.Background()
	for _, d := range []runtime.ModuleDescriptor{
		{Name: "helev", Class: ccu4.ClassHeLevel, URI: sim.URI()},
		{Name: "offline", Class: ccu4.ClassHeLevel, URI: deadURI},
		{Name: "ramp", Class: classRamp, Parameters: map[string]interface{}{paramSecret: "s3cret"}},
	} {
		_, err := n.AddModule(ctx, d)
		require.NoError(t, err)
	}

	r := gin.New()
	InstallHandler(r.Group("/api/v1"), n)
	return r, n, sim
}

func do(r http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if len(contentType) > 0 {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	require.Len(t, body.Errors, 1)
	return body.Errors[0].Code
}

func TestGetNode(t *testing.T) {
	r, n, _ := newRouter(t)
	n.Meta().Version = "7"
	w := do(r, http.MethodGet, "/api/v1/node", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", w.Header().Get("ETag"))
	var meta runtime.NodeMeta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "test-node", meta.Name)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/node", nil)
	req.Header.Set("If-None-Match", "7")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestListModulesHandler(t *testing.T) {
	r, _, _ := newRouter(t)

	var list ModuleList
	w := do(r, http.MethodGet, "/api/v1/modules?class="+ccu4.ClassHeLevel, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Modules, 2)
	assert.Equal(t, "helev", list.Modules[0].Name)

	w = do(r, http.MethodGet, "/api/v1/modules?filter="+url.QueryEscape(`{"name":{"in":["ramp","nope"]}}`), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Modules, 1)
	assert.Equal(t, classRamp, list.Modules[0].Class)
	assert.NotContains(t, list.Modules[0].Parameters, paramSecret)

	w = do(r, http.MethodGet, "/api/v1/modules?filter="+url.QueryEscape("{"), "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrCodeMalformedJSON, errorCode(t, w))

	w = do(r, http.MethodGet, "/api/v1/modules/ramp/parameters", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var params ParameterList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &params))
	assert.Len(t, params.Parameters, 4)
}

func TestReadWriteHandlers(t *testing.T) {
	r, _, _ := newRouter(t)

	w := do(r, http.MethodGet, "/api/v1/modules/helev/parameters/value", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var v struct {
		Value     float64   `json:"value"`
		Timestamp time.Time `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, 57.3, v.Value)
	assert.False(t, v.Timestamp.IsZero())

	w = do(r, http.MethodPut, "/api/v1/modules/helev/parameters/empty_length", "application/json", `{"value": 500}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, 500.0, v.Value)

	w = do(r, http.MethodPut, "/api/v1/modules/helev/parameters/empty_length", "application/json", `{"value"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	r, _, sim := newRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   response.ErrCode
	}{
		{"validation", http.MethodPut, "/api/v1/modules/helev/parameters/empty_length", `{"value": 5000}`, http.StatusBadRequest, response.ErrCodeValidation},
		{"readonly", http.MethodPut, "/api/v1/modules/helev/parameters/value", `{"value": 1}`, http.StatusForbidden, response.ErrCodeReadOnly},
		{"unknown module", http.MethodGet, "/api/v1/modules/nope/parameters/value", "", http.StatusNotFound, response.ErrCodeResourceNotFound},
		{"unknown parameter", http.MethodGet, "/api/v1/modules/helev/parameters/nope", "", http.StatusNotFound, response.ErrCodeResourceNotFound},
		{"internal parameter", http.MethodGet, "/api/v1/modules/ramp/parameters/secret", "", http.StatusNotFound, response.ErrCodeResourceNotFound},
		{"connection", http.MethodGet, "/api/v1/modules/offline/parameters/value", "", http.StatusServiceUnavailable, response.ErrCodeDeviceConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, "application/json", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}

	sim.SetSilent("h", true)
	w := do(r, http.MethodGet, "/api/v1/modules/helev/parameters/value", "", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, response.ErrCodeDeviceTimeout, errorCode(t, w))
}

func TestUnmappedStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sim := newSim(t)
	sim.Set("hsf", 9)
	n := newNode(t)
	_, err := n.AddModule(context.Background(), runtime.ModuleDescriptor{Name: "helev", Class: ccu4.ClassHeLevel, URI: sim.URI()})
	require.NoError(t, err)
	r := gin.New()
	InstallHandler(r.Group("/api/v1"), n)

	w := do(r, http.MethodGet, "/api/v1/modules/helev/parameters/status", "", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, response.ErrCodeDeviceProtocol, errorCode(t, w))
}

func TestPatchHandler(t *testing.T) {
	r, _, _ := newRouter(t)
	path := "/api/v1/modules/ramp/parameters/ramp"

	w := do(r, http.MethodPatch, path, "application/merge-patch+json; charset=utf-8", `{"rate": 2.5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v struct {
		Value map[string]interface{} `json:"value"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, map[string]interface{}{"rate": 2.5, "enabled": true}, v.Value)

	w = do(r, http.MethodPatch, path, "application/json-patch+json", `[{"op": "replace", "path": "/enabled", "value": false}]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, map[string]interface{}{"rate": 2.5, "enabled": false}, v.Value)

	w = do(r, http.MethodPatch, path, "application/merge-patch+json", `{"rate": 20}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrCodeValidation, errorCode(t, w))

	w = do(r, http.MethodPatch, path, "application/merge-patch+json", `{"speed": 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPatch, path, "text/plain", `{}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, response.ErrCodeUnsupportedPatchType, errorCode(t, w))

	ops := make([]string, maxJSONPatchOperations+1)
	for i := range ops {
		ops[i] = `{"op": "test", "path": "/enabled", "value": false}`
	}
	w = do(r, http.MethodPatch, path, "application/json-patch+json", "["+strings.Join(ops, ",")+"]")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrCodeTooManyJsonPatchOperations, errorCode(t, w))
}
