package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/storage"
)

// ragIngester is the subset of interfaces.RAGEngine the admin handler
// drives directly; declared locally so this package depends on an
// interface rather than the concrete rag.Engine type.
type ragIngester interface {
	IngestText(ctx context.Context, tenantID uint64, filename, content string) error
	IngestImage(ctx context.Context, tenantID uint64, filename string, data []byte, mime string) error
	DeleteDocument(ctx context.Context, tenantID uint64, filename string) error
}

// AdminHandler exposes document ingestion/deletion for operators, grounded
// on WeKnora's internal/handler/system.go constructor+handler-method shape.
type AdminHandler struct {
	rag     ragIngester
	blobs   *storage.Blobs // may be nil; original-file retention is best-effort
	version string
}

// NewAdminHandler builds an AdminHandler. blobs may be nil when no object
// store is configured, in which case uploaded originals are not retained.
func NewAdminHandler(rag ragIngester, blobs *storage.Blobs, version string) *AdminHandler {
	return &AdminHandler{rag: rag, blobs: blobs, version: version}
}

// SystemInfo reports the running build version.
func (h *AdminHandler) SystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": h.version, "blob_storage_enabled": h.blobs != nil})
}

func (h *AdminHandler) tenantIDParam(c *gin.Context) (uint64, bool) {
	tenantID, err := strconv.ParseUint(c.Param("tenant_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant_id"})
		return 0, false
	}
	return tenantID, true
}

// IngestDocument handles POST /admin/tenants/:tenant_id/documents. The
// uploaded file is indexed as text (or captioned then indexed, for image
// content types) and, when an object store is configured, the original
// bytes are retained under "<tenant_id>/<filename>" for later retrieval.
func (h *AdminHandler) IngestDocument(c *gin.Context) {
	ctx := logger.CloneContext(c.Request.Context())
	tenantID, ok := h.tenantIDParam(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Errorf(ctx, "[Admin] read upload %q failed: %v", header.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if isImageMIME(mimeType) {
		err = h.rag.IngestImage(ctx, tenantID, header.Filename, data, mimeType)
	} else {
		err = h.rag.IngestText(ctx, tenantID, header.Filename, string(data))
	}
	if err != nil {
		logger.Errorf(ctx, "[Admin] ingest %q for tenant %d failed: %v", header.Filename, tenantID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
		return
	}

	if h.blobs != nil {
		objectName := fmt.Sprintf("%d/%s", tenantID, header.Filename)
		if err := h.blobs.Put(ctx, objectName, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
			logger.Warnf(ctx, "[Admin] retain original for %q failed (document was still indexed): %v", header.Filename, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ingested", "filename": header.Filename})
}

// DeleteDocument handles DELETE /admin/tenants/:tenant_id/documents/:filename.
func (h *AdminHandler) DeleteDocument(c *gin.Context) {
	ctx := logger.CloneContext(c.Request.Context())
	tenantID, ok := h.tenantIDParam(c)
	if !ok {
		return
	}
	filename := c.Param("filename")

	if err := h.rag.DeleteDocument(ctx, tenantID, filename); err != nil {
		logger.Errorf(ctx, "[Admin] delete %q for tenant %d failed: %v", filename, tenantID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deletion failed"})
		return
	}

	if h.blobs != nil {
		objectName := fmt.Sprintf("%d/%s", tenantID, filename)
		if err := h.blobs.Delete(ctx, objectName); err != nil {
			logger.Warnf(ctx, "[Admin] delete retained original for %q failed: %v", filename, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "filename": filename})
}

func isImageMIME(mimeType string) bool {
	return len(mimeType) >= 6 && mimeType[:6] == "image/"
}
