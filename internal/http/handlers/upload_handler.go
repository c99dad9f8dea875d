package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-community-directory/internal/upload"
)

// UploadResponse carries the public URL of a stored logo.
type UploadResponse struct {
	URL string `json:"url" example:"https://logos.s3.us-east-1.amazonaws.com/logos/0b6f4c1e.png"`
}

// UploadLogo godoc
// @ID          uploadLogo
// @Summary     Upload a community logo
// @Description Stores a PNG, JPEG, GIF or WebP image and returns its public URL for use as logo_url.
// @Tags        Uploads
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       file  formData  file  true  "Logo image"
//
// @Success     201  {object} handlers.UploadResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing or empty file"
// @Failure     413  {object} handlers.ErrorResponse "File too large"
// @Failure     415  {object} handlers.ErrorResponse "Unsupported image type"
// @Failure     501  {object} handlers.ErrorResponse "Uploads disabled"
// @Router      /uploads/logo [post]
func (h *Handlers) UploadLogo(c *gin.Context) {
	if h.uploader == nil {
		fail(c, http.StatusNotImplemented, ErrCodeUploadDisabled, "logo uploads are disabled")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" is required")
		return
	}
	if fh.Size > h.uploadMax {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeUploadTooLarge, "logo exceeds the size limit")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.uploadMax+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read uploaded file")
		return
	}

	url, err := h.uploader.Upload(c.Request.Context(), upload.Object{FileName: fh.Filename, Data: data})
	switch {
	case err == nil:
		ok(c, http.StatusCreated, UploadResponse{URL: url})
	case errors.Is(err, upload.ErrEmpty):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file is empty")
	case errors.Is(err, upload.ErrTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeUploadTooLarge, "logo exceeds the size limit")
	case errors.Is(err, upload.ErrType):
		fail(c, http.StatusUnsupportedMediaType, ErrCodeUploadType, "logo must be a PNG, JPEG, GIF or WebP image")
	default:
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeInternal, "could not store the logo")
	}
}
