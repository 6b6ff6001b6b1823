package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"shoe-store/internal/service"

	"github.com/gin-gonic/gin"
)

// readUpload loads one multipart file, refusing anything over maxBytes
// before reading it in full.
func readUpload(fh *multipart.FileHeader, maxBytes int64) (service.UploadFile, error) {
	f := service.UploadFile{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type")}
	if fh.Size > maxBytes {
		return f, fmt.Errorf("%w: file %q exceeds %d bytes", service.ErrInvalidInput, fh.Filename, maxBytes)
	}

	src, err := fh.Open()
	if err != nil {
		return f, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return f, fmt.Errorf("failed to read upload: %w", err)
	}
	f.Data = data
	if f.ContentType == "" || f.ContentType == "application/octet-stream" {
		f.ContentType = http.DetectContentType(data)
	}
	return f, nil
}

func (h *Handler) limitBody(c *gin.Context, files int64) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, files*h.opts.MaxUploadBytes+1<<20)
}

func (h *Handler) uploadSingle(c *gin.Context, uploads *service.UploadService) {
	h.limitBody(c, 1)
	fh, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "No file uploaded", err)
		return
	}
	f, err := readUpload(fh, h.opts.MaxUploadBytes)
	if err != nil {
		h.respondError(c, err)
		return
	}

	res, err := uploads.UploadImage(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"imageUrl": res.ImageURL,
		"fileName": res.FileName,
		"imageId":  res.ImageID,
	})
}

// uploadImage stores through the configured backend
func (h *Handler) uploadImage(c *gin.Context) {
	h.uploadSingle(c, h.svc.Uploads)
}

// uploadImageLocal always stores on local disk
func (h *Handler) uploadImageLocal(c *gin.Context) {
	h.uploadSingle(c, h.svc.LocalUploads)
}

func (h *Handler) uploadImages(c *gin.Context) {
	h.limitBody(c, service.MaxFilesPerRequest)
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "No files uploaded", err)
		return
	}

	headers := form.File["images"]
	if len(headers) > service.MaxFilesPerRequest {
		badRequest(c, fmt.Sprintf("At most %d files per request", service.MaxFilesPerRequest), nil)
		return
	}
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := readUpload(fh, h.opts.MaxUploadBytes)
		if err != nil {
			h.respondError(c, err)
			return
		}
		files = append(files, f)
	}

	results, err := h.svc.Uploads.UploadImages(c.Request.Context(), files)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"images":  results,
	})
}
