package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/edukit/coursebot-api/internal/dto"
	"github.com/edukit/coursebot-api/internal/middleware"
	"github.com/edukit/coursebot-api/internal/models"
	"github.com/edukit/coursebot-api/internal/service"
)

type materialServiceMock struct {
	upsert    models.UpsertResult
	upsertErr error
	active    *models.MaterialRecord
	purged    int64
	url       string
}

func (m *materialServiceMock) UploadFile(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType, mime string, visibility models.Visibility, data []byte) (models.UpsertResult, error) {
	return m.upsert, m.upsertErr
}

func (m *materialServiceMock) AddLink(ctx context.Context, actor *models.JWTClaims, weekNo int, url string, visibility models.Visibility) (models.UpsertResult, error) {
	return m.upsert, m.upsertErr
}

func (m *materialServiceMock) GetActive(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (*models.MaterialRecord, error) {
	return m.active, nil
}

func (m *materialServiceMock) ListWeek(ctx context.Context, actor *models.JWTClaims, weekNo int) ([]models.MaterialRecord, error) {
	return nil, nil
}

func (m *materialServiceMock) ListVersions(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType, limit int) ([]models.MaterialRecord, error) {
	return nil, nil
}

func (m *materialServiceMock) Archive(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (bool, error) {
	return true, nil
}

func (m *materialServiceMock) PurgeArchived(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (int64, error) {
	return m.purged, nil
}

func (m *materialServiceMock) EnforceRetention(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (int64, error) {
	return m.purged, nil
}

func (m *materialServiceMock) DownloadURL(ctx context.Context, actor *models.JWTClaims, materialID int64) (string, error) {
	return m.url, nil
}

func (m *materialServiceMock) Download(ctx context.Context, materialID int64, token string) (*service.MaterialDownload, error) {
	return nil, nil
}

func newGinContext(method, path string, body []byte, contentType string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.Request = req
	return c, w
}

func setTeacher(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
}

func multipartUpload(t *testing.T, fields map[string]string, fileField, filename string, content []byte) ([]byte, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	part, err := writer.CreateFormFile(fileField, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf.Bytes(), writer.FormDataContentType()
}

func TestMaterialHandlerUploadCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &materialServiceMock{upsert: models.UpsertResult{Outcome: models.UpsertInserted, MaterialID: 4, Version: 1}}
	handler := NewMaterialHandler(mockSvc)

	body, contentType := multipartUpload(t, map[string]string{"type": "slides"}, "file", "slides.pdf", []byte("pdf bytes"))
	c, w := newGinContext(http.MethodPost, "/weeks/3/materials", body, contentType)
	c.Params = gin.Params{{Key: "weekNo", Value: "3"}}
	setTeacher(c)

	handler.Upload(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.UpsertResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, models.UpsertInserted, envelope.Data.Outcome)
}

func TestMaterialHandlerUploadRejectedConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &materialServiceMock{upsert: models.UpsertResult{Outcome: models.UpsertRejected, MaterialID: -1}}
	handler := NewMaterialHandler(mockSvc)

	body, contentType := multipartUpload(t, map[string]string{"type": "slides"}, "file", "slides.pdf", []byte("pdf bytes"))
	c, w := newGinContext(http.MethodPost, "/weeks/3/materials", body, contentType)
	c.Params = gin.Params{{Key: "weekNo", Value: "3"}}
	setTeacher(c)

	handler.Upload(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestMaterialHandlerUploadMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMaterialHandler(&materialServiceMock{})

	body, contentType := func() ([]byte, string) {
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)
		_ = writer.WriteField("type", "slides")
		_ = writer.Close()
		return buf.Bytes(), writer.FormDataContentType()
	}()
	c, w := newGinContext(http.MethodPost, "/weeks/3/materials", body, contentType)
	c.Params = gin.Params{{Key: "weekNo", Value: "3"}}
	setTeacher(c)

	handler.Upload(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaterialHandlerAddLinkDuplicateOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &materialServiceMock{upsert: models.UpsertResult{Outcome: models.UpsertDuplicate, MaterialID: -1}}
	handler := NewMaterialHandler(mockSvc)

	payload, _ := json.Marshal(dto.AddLinkRequest{URL: "https://example.com/lecture"})
	c, w := newGinContext(http.MethodPost, "/weeks/3/links", payload, "application/json")
	c.Params = gin.Params{{Key: "weekNo", Value: "3"}}
	setTeacher(c)

	handler.AddLink(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMaterialHandlerInvalidWeekParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMaterialHandler(&materialServiceMock{})

	c, w := newGinContext(http.MethodGet, "/weeks/zero/materials", nil, "")
	c.Params = gin.Params{{Key: "weekNo", Value: "zero"}}
	setTeacher(c)

	handler.ListWeek(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaterialHandlerDownloadRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMaterialHandler(&materialServiceMock{})

	c, w := newGinContext(http.MethodGet, "/materials/7/download", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "7"}}

	handler.Download(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
