package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dverasc/datalens-backend/internal/blobstore"
	"github.com/dverasc/datalens-backend/internal/logger"
	"github.com/dverasc/datalens-backend/internal/repos"
	"github.com/dverasc/datalens-backend/internal/services"
	"github.com/dverasc/datalens-backend/internal/tabular"
	"github.com/dverasc/datalens-backend/internal/types"
)

const salesCSV = "a,b\n1,2\n"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("development")
	require.NoError(t, err)

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&types.Dataset{}, &types.CacheEntry{}))

	store, err := blobstore.NewDiskStore(filepath.Join(t.TempDir(), "blobs"), log)
	require.NoError(t, err)

	renderer, err := tabular.NewRenderer(log)
	require.NoError(t, err)

	datasetService := services.NewDatasetService(
		gdb, log,
		repos.NewDatasetRepo(gdb, log),
		repos.NewCacheEntryRepo(gdb, log),
		store,
		tabular.NewDescriber(),
		renderer,
		2,
	)
	handler := NewDatasetHandler(log, datasetService)

	router := gin.New()
	router.GET("/healthcheck", HealthCheck)
	api := router.Group("/api")
	{
		api.POST("/datasets/upload", handler.Upload)
		api.GET("/datasets", handler.List)
		api.DELETE("/datasets/:id", handler.Delete)
		api.GET("/datasets/:id/download", handler.Download)
		api.GET("/datasets/:id/summary", handler.Summary)
		api.GET("/datasets/:id/chart", handler.Chart)
	}
	return router
}

func doRequest(router *gin.Engine, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func uploadChunked(t *testing.T, router *gin.Engine, fileName string, content []byte) int64 {
	t.Helper()
	var body bytes.Buffer
	encoder := json.NewEncoder(&body)
	require.NoError(t, encoder.Encode(services.Chunk{FileName: fileName}))
	require.NoError(t, encoder.Encode(services.Chunk{Content: content}))

	rec := doRequest(router, http.MethodPost, "/api/datasets/upload", &body, "application/x-ndjson")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		ID      int64  `json:"id"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Greater(t, resp.ID, int64(0))
	return resp.ID
}

func TestUploadListSummarizeDeleteScenario(t *testing.T) {
	router := newTestRouter(t)

	id := uploadChunked(t, router, "sales.csv", []byte(salesCSV))
	require.Equal(t, int64(1), id)

	list := doRequest(router, http.MethodGet, "/api/datasets", nil, "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), `"sales.csv"`)

	first := doRequest(router, http.MethodGet, "/api/datasets/1/summary", nil, "")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := doRequest(router, http.MethodGet, "/api/datasets/1/summary", nil, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	del := doRequest(router, http.MethodDelete, "/api/datasets/1", nil, "")
	require.Equal(t, http.StatusOK, del.Code)

	download := doRequest(router, http.MethodGet, "/api/datasets/1/download", nil, "")
	assert.Equal(t, http.StatusNotFound, download.Code)

	list = doRequest(router, http.MethodGet, "/api/datasets", nil, "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.NotContains(t, list.Body.String(), `"sales.csv"`)
}

func TestUploadWithoutFileNameIsRejected(t *testing.T) {
	router := newTestRouter(t)

	var body bytes.Buffer
	require.NoError(t, json.NewEncoder(&body).Encode(services.Chunk{Content: []byte(salesCSV)}))

	rec := doRequest(router, http.MethodPost, "/api/datasets/upload", &body, "application/x-ndjson")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := doRequest(router, http.MethodGet, "/api/datasets", nil, "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.JSONEq(t, `{"datasets":[]}`, list.Body.String())
}

func TestUploadMultipart(t *testing.T) {
	router := newTestRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "survey.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(salesCSV))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	rec := doRequest(router, http.MethodPost, "/api/datasets/upload", &body, writer.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "uploaded successfully")
}

func TestDownloadReturnsAttachment(t *testing.T) {
	router := newTestRouter(t)
	uploadChunked(t, router, "sales.csv", []byte(salesCSV))

	rec := doRequest(router, http.MethodGet, "/api/datasets/1/download", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, salesCSV, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "sales.csv")
}

func TestChartReturnsPNG(t *testing.T) {
	router := newTestRouter(t)
	uploadChunked(t, router, "sales.csv", []byte("a,b\n1,2\n3,4\n"))

	rec := doRequest(router, http.MethodGet, "/api/datasets/1/chart?x=a&y=b", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestChartMissingAxesIsBadRequest(t *testing.T) {
	router := newTestRouter(t)
	uploadChunked(t, router, "sales.csv", []byte(salesCSV))

	rec := doRequest(router, http.MethodGet, "/api/datasets/1/chart?x=a", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidDatasetIDParam(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/datasets/abc/summary", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUnknownDatasetIsNotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodDelete, "/api/datasets/42", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/healthcheck", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
