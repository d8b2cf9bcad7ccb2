package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dverasc/datalens-backend/internal/logger"
	"github.com/dverasc/datalens-backend/internal/services"
)

type DatasetHandler struct {
	log            *logger.Logger
	datasetService services.DatasetService
}

func NewDatasetHandler(baseLog *logger.Logger, datasetService services.DatasetService) *DatasetHandler {
	return &DatasetHandler{
		log:            baseLog.With("handler", "DatasetHandler"),
		datasetService: datasetService,
	}
}

// POST /api/datasets/upload
//
// Accepts either a multipart form ("file" field) or a streamed sequence of
// JSON chunk objects ({"file_name": ..., "content": <base64>}), one logical
// file per request. Chunks arrive in body order, which is all the ordering
// the assembler needs.
func (h *DatasetHandler) Upload(c *gin.Context) {
	assembler := services.NewChunkAssembler()

	contentType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if strings.HasPrefix(contentType, "multipart/") {
		if err := h.pushMultipart(c, assembler); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_argument", err)
			return
		}
	} else {
		if err := h.pushChunkStream(c.Request.Body, assembler); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_argument", err)
			return
		}
	}

	fileName, content, err := assembler.Finalize()
	if err != nil {
		RespondAPIError(c, err)
		return
	}

	dataset, message, err := h.datasetService.Upload(c.Request.Context(), fileName, content)
	if err != nil {
		h.log.Error("Upload failed", "file_name", fileName, "error", err)
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"id": dataset.ID, "message": message})
}

func (h *DatasetHandler) pushMultipart(c *gin.Context, assembler *services.ChunkAssembler) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("multipart upload requires a 'file' field: %w", err)
	}
	f, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read uploaded file: %w", err)
	}
	assembler.Push(services.Chunk{FileName: fileHeader.Filename})
	assembler.Push(services.Chunk{Content: content})
	return nil
}

func (h *DatasetHandler) pushChunkStream(body io.Reader, assembler *services.ChunkAssembler) error {
	decoder := json.NewDecoder(body)
	for {
		var chunk services.Chunk
		if err := decoder.Decode(&chunk); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("malformed upload chunk: %w", err)
		}
		assembler.Push(chunk)
	}
}

// GET /api/datasets
func (h *DatasetHandler) List(c *gin.Context) {
	summaries, err := h.datasetService.List(c.Request.Context())
	if err != nil {
		h.log.Error("List failed", "error", err)
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"datasets": summaries})
}

// DELETE /api/datasets/:id
func (h *DatasetHandler) Delete(c *gin.Context) {
	id, ok := h.datasetID(c)
	if !ok {
		return
	}
	if err := h.datasetService.Delete(c.Request.Context(), id); err != nil {
		h.log.Error("Delete failed", "dataset_id", id, "error", err)
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{})
}

// GET /api/datasets/:id/download
func (h *DatasetHandler) Download(c *gin.Context) {
	id, ok := h.datasetID(c)
	if !ok {
		return
	}
	fileName, content, err := h.datasetService.Download(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Download failed", "dataset_id", id, "error", err)
		RespondAPIError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "text/csv", content)
}

// GET /api/datasets/:id/summary
func (h *DatasetHandler) Summary(c *gin.Context) {
	id, ok := h.datasetID(c)
	if !ok {
		return
	}
	payload, err := h.datasetService.Summarize(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Summary failed", "dataset_id", id, "error", err)
		RespondAPIError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

// GET /api/datasets/:id/chart?x=<col>&y=<col>
func (h *DatasetHandler) Chart(c *gin.Context) {
	id, ok := h.datasetID(c)
	if !ok {
		return
	}
	xColumn := strings.TrimSpace(c.Query("x"))
	yColumn := strings.TrimSpace(c.Query("y"))
	payload, err := h.datasetService.Chart(c.Request.Context(), id, xColumn, yColumn)
	if err != nil {
		h.log.Error("Chart failed", "dataset_id", id, "x", xColumn, "y", yColumn, "error", err)
		RespondAPIError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", payload)
}

func (h *DatasetHandler) datasetID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("invalid dataset id %q", raw))
		return 0, false
	}
	return id, true
}
