package handler

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRAGIngester struct {
	textFilenames  []string
	imageFilenames []string
	deletedNames   []string
	ingestErr      error
	deleteErr      error
}

func (f *fakeRAGIngester) IngestText(ctx context.Context, tenantID uint64, filename, content string) error {
	f.textFilenames = append(f.textFilenames, filename)
	return f.ingestErr
}

func (f *fakeRAGIngester) IngestImage(ctx context.Context, tenantID uint64, filename string, data []byte, mime string) error {
	f.imageFilenames = append(f.imageFilenames, filename)
	return f.ingestErr
}

func (f *fakeRAGIngester) DeleteDocument(ctx context.Context, tenantID uint64, filename string) error {
	f.deletedNames = append(f.deletedNames, filename)
	return f.deleteErr
}

func multipartUpload(t *testing.T, field, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	if contentType != "" {
		header["Content-Type"] = []string{contentType}
	}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func newUploadContext(t *testing.T, tenantID, field, filename, contentType, content string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	body, formContentType := multipartUpload(t, field, filename, contentType, content)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/tenants/"+tenantID+"/documents", body)
	c.Request.Header.Set("Content-Type", formContentType)
	c.Params = gin.Params{{Key: "tenant_id", Value: tenantID}}
	return c, rec
}

func TestAdminHandlerSystemInfo(t *testing.T) {
	h := NewAdminHandler(&fakeRAGIngester{}, nil, "v1.2.3")
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/system/info", nil)
	h.SystemInfo(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "v1.2.3")
	assert.Contains(t, rec.Body.String(), `"blob_storage_enabled":false`)
}

func TestAdminHandlerIngestDocument(t *testing.T) {
	t.Run("rejects an invalid tenant id", func(t *testing.T) {
		h := NewAdminHandler(&fakeRAGIngester{}, nil, "v1")
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodPost, "/admin/tenants/abc/documents", nil)
		c.Params = gin.Params{{Key: "tenant_id", Value: "abc"}}
		h.IngestDocument(c)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a request missing the file field", func(t *testing.T) {
		h := NewAdminHandler(&fakeRAGIngester{}, nil, "v1")
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodPost, "/admin/tenants/1/documents", bytes.NewReader(nil))
		c.Request.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		c.Params = gin.Params{{Key: "tenant_id", Value: "1"}}
		h.IngestDocument(c)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("routes a text upload to IngestText", func(t *testing.T) {
		rag := &fakeRAGIngester{}
		h := NewAdminHandler(rag, nil, "v1")
		c, rec := newUploadContext(t, "1", "file", "notes.txt", "text/plain", "hello world")
		h.IngestDocument(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"notes.txt"}, rag.textFilenames)
		assert.Empty(t, rag.imageFilenames)
	})

	t.Run("routes an image upload to IngestImage", func(t *testing.T) {
		rag := &fakeRAGIngester{}
		h := NewAdminHandler(rag, nil, "v1")
		c, rec := newUploadContext(t, "1", "file", "photo.png", "image/png", "binarydata")
		h.IngestDocument(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"photo.png"}, rag.imageFilenames)
		assert.Empty(t, rag.textFilenames)
	})

	t.Run("returns 500 when ingestion fails", func(t *testing.T) {
		rag := &fakeRAGIngester{ingestErr: errors.New("embedding provider down")}
		h := NewAdminHandler(rag, nil, "v1")
		c, rec := newUploadContext(t, "1", "file", "notes.txt", "text/plain", "hello")
		h.IngestDocument(c)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestAdminHandlerDeleteDocument(t *testing.T) {
	t.Run("rejects an invalid tenant id", func(t *testing.T) {
		h := NewAdminHandler(&fakeRAGIngester{}, nil, "v1")
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodDelete, "/admin/tenants/abc/documents/notes.txt", nil)
		c.Params = gin.Params{{Key: "tenant_id", Value: "abc"}, {Key: "filename", Value: "notes.txt"}}
		h.DeleteDocument(c)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("deletes the document", func(t *testing.T) {
		rag := &fakeRAGIngester{}
		h := NewAdminHandler(rag, nil, "v1")
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodDelete, "/admin/tenants/1/documents/notes.txt", nil)
		c.Params = gin.Params{{Key: "tenant_id", Value: "1"}, {Key: "filename", Value: "notes.txt"}}
		h.DeleteDocument(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"notes.txt"}, rag.deletedNames)
	})

	t.Run("returns 500 when deletion fails", func(t *testing.T) {
		rag := &fakeRAGIngester{deleteErr: errors.New("db down")}
		h := NewAdminHandler(rag, nil, "v1")
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodDelete, "/admin/tenants/1/documents/notes.txt", nil)
		c.Params = gin.Params{{Key: "tenant_id", Value: "1"}, {Key: "filename", Value: "notes.txt"}}
		h.DeleteDocument(c)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestIsImageMIME(t *testing.T) {
	assert.True(t, isImageMIME("image/png"))
	assert.True(t, isImageMIME("image/jpeg"))
	assert.False(t, isImageMIME("text/plain"))
	assert.False(t, isImageMIME(""))
}
