package controllers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

// MediaController manages the admin media library.
type MediaController struct {
	store    store.AdminStore
	storage  utils.MediaStorage
	maxBytes int64
}

// NewMediaController creates a MediaController. maxBytes bounds each upload.
func NewMediaController(st store.AdminStore, storage utils.MediaStorage, maxBytes int64) *MediaController {
	return &MediaController{store: st, storage: storage, maxBytes: maxBytes}
}

// List pages through uploaded media, newest first.
func (m *MediaController) List(ctx *gin.Context) {
	page := pageFromQuery(ctx)
	items, total, err := m.store.ListMedia(ctx.Request.Context(), page)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to load media")
		return
	}
	utils.Success(ctx, paginated(items, total, page))
}

// Upload stores an image or video sent as multipart field "file".
func (m *MediaController) Upload(ctx *gin.Context) {
	userID, _ := getUserID(ctx)

	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "no file uploaded")
		return
	}
	defer file.Close()

	if header.Size > m.maxBytes {
		utils.Error(ctx, http.StatusBadRequest, 40081, fmt.Sprintf("file size exceeds %d bytes", m.maxBytes))
		return
	}

	// Enforce the limit on the body itself; the header size is client supplied
	data, err := io.ReadAll(io.LimitReader(file, m.maxBytes+1))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40082, "failed to read upload")
		return
	}
	if int64(len(data)) > m.maxBytes {
		utils.Error(ctx, http.StatusBadRequest, 40081, fmt.Sprintf("file size exceeds %d bytes", m.maxBytes))
		return
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		utils.Error(ctx, http.StatusBadRequest, 40083, "only image and video files are accepted")
		return
	}

	now := time.Now().UTC()
	key := mediaKey(now, header.Filename, contentType)

	c := ctx.Request.Context()
	url, err := m.storage.Put(c, key, contentType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		utils.Logger.Error("media upload failed", zap.String("key", key), zap.Error(err))
		utils.Error(ctx, http.StatusBadGateway, 50281, "failed to store file")
		return
	}

	media := &models.Media{
		ID:          uuid.NewString(),
		Key:         key,
		URL:         url,
		ContentType: contentType,
		Size:        int64(len(data)),
		Caption:     utils.SanitizeText(ctx.PostForm("caption")),
		UploadedBy:  userID,
		CreatedAt:   now,
	}
	if err := m.store.CreateMedia(c, media); err != nil {
		if derr := m.storage.Delete(c, key); derr != nil {
			utils.Logger.Warn("orphaned media object", zap.String("key", key), zap.Error(derr))
		}
		utils.Error(ctx, http.StatusInternalServerError, 50082, "failed to record media")
		return
	}
	utils.Created(ctx, media)
}

// Delete removes a media record and its stored object.
func (m *MediaController) Delete(ctx *gin.Context) {
	c := ctx.Request.Context()
	media, err := m.store.GetMedia(c, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40480, "media not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50083, "failed to load media")
		return
	}
	if err := m.store.DeleteMedia(c, media.ID); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50084, "failed to delete media")
		return
	}
	if err := m.storage.Delete(c, media.Key); err != nil {
		utils.Logger.Warn("media object not deleted", zap.String("key", media.Key), zap.Error(err))
	}
	utils.Success(ctx, gin.H{"id": media.ID})
}

// mediaExtensions maps sniffed content types to the extension used in keys.
var mediaExtensions = map[string]string{
	"image/bmp":    ".bmp",
	"image/gif":    ".gif",
	"image/jpeg":   ".jpg",
	"image/png":    ".png",
	"image/webp":   ".webp",
	"image/x-icon": ".ico",
	"video/avi":    ".avi",
	"video/mp4":    ".mp4",
	"video/webm":   ".webm",
}

// mediaExt derives the key extension from the sniffed content type. The
// client filename never decides it.
func mediaExt(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	if ext, ok := mediaExtensions[mt]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// mediaKey is YYYY/MM/DD/<uuid>[-<slugged name>].<ext>, with ext taken from
// contentType.
func mediaKey(now time.Time, filename, contentType string) string {
	base := filepath.Base(filename)
	name := slug.Make(strings.TrimSuffix(base, filepath.Ext(base)))
	if len(name) > 48 {
		name = strings.Trim(name[:48], "-")
	}
	id := uuid.NewString()
	if name != "" {
		id += "-" + name
	}
	return fmt.Sprintf("%s/%s%s", now.Format("2006/01/02"), id, mediaExt(contentType))
}
