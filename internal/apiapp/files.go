package apiapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/liftcare/liftsuite/internal/blobstore"
	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/report"
	"github.com/liftcare/liftsuite/internal/store"
)

const (
	maxPhotoBytes     = 10 << 20
	maxSignatureBytes = 2 << 20
	maxPhotoEdge      = 1600

	// Decoded size budgets, checked from the image header before decoding.
	maxPhotoPixels     = 40_000_000
	maxSignaturePixels = 4_000_000
)

var (
	photoMimes     = []string{"image/png", "image/jpeg", "image/webp"}
	signatureMimes = []string{"image/png"}
)

// ownerTypes maps the URL segment of an attachment owner to its stored type.
var ownerTypes = map[string]string{
	"work-orders": model.OwnerWorkOrder,
	"maintenance": model.OwnerMaintenance,
	"emergencies": model.OwnerEmergency,
}

// attachmentOwner resolves the owner record and returns its client id after the visibility check.
func (s *server) attachmentOwner(ctx context.Context, u *model.User, ownerType, ownerID string) (string, error) {
	switch ownerType {
	case model.OwnerWorkOrder:
		wo, err := s.visibleWorkOrder(ctx, u, ownerID)
		return wo.ClientID, err
	case model.OwnerMaintenance:
		_, elevator, err := s.visibleMaintenance(ctx, u, ownerID)
		return elevator.ClientID, err
	case model.OwnerEmergency:
		e, err := s.visibleEmergency(ctx, u, ownerID)
		return e.ClientID, err
	}
	return "", store.ErrNotFound
}

func (s *server) listAttachments(w http.ResponseWriter, r *http.Request) {
	ownerType := ownerTypes[mux.Vars(r)["owner"]]
	ownerID := pathID(r)
	if _, err := s.attachmentOwner(r.Context(), userFromContext(r.Context()), ownerType, ownerID); err != nil {
		s.storeError(w, r, err, "record")
		return
	}
	items, err := s.store.ListAttachments(r.Context(), ownerType, ownerID)
	if err != nil {
		s.storeError(w, r, err, "attachments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// uploadPhoto stores one evidence photo from the multipart field "photo".
func (s *server) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	ownerType := ownerTypes[mux.Vars(r)["owner"]]
	ownerID := pathID(r)
	clientID, err := s.attachmentOwner(r.Context(), userFromContext(r.Context()), ownerType, ownerID)
	if err != nil {
		s.storeError(w, r, err, "record")
		return
	}

	raw, _, fileName, err := parseUploadedFileWithField(r, "photo", maxPhotoBytes, photoMimes, "photo file is required")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, mime, err := processUploadedPhotoBytes(raw, maxPhotoEdge)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := blobstore.ContentKey("photos", blobstore.ExtensionForMime(mime), data, s.now())
	if err := s.blobs.Put(r.Context(), key, mime, data); err != nil {
		s.logger.Error("store photo", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to store photo")
		return
	}

	a := model.Attachment{
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Kind:      model.AttachmentPhoto,
		BlobKey:   key,
		FileName:  strings.TrimSuffix(fileName, filepath.Ext(fileName)) + ".png",
		Mime:      mime,
		SizeBytes: int64(len(data)),
	}
	if err := s.store.CreateAttachment(r.Context(), &a); err != nil {
		s.storeError(w, r, err, "attachment")
		return
	}
	s.publish(r.Context(), "attachments", realtime.EventInsert, a.ID, clientID)
	writeJSON(w, http.StatusCreated, a)
}

func (s *server) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAttachment(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "attachment")
		return
	}
	if _, err := s.attachmentOwner(r.Context(), userFromContext(r.Context()), a.OwnerType, a.OwnerID); err != nil {
		s.storeError(w, r, err, "attachment")
		return
	}
	s.streamBlob(w, r, a.BlobKey, a.Mime, a.FileName, "inline")
}

func (s *server) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAttachment(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "attachment")
		return
	}
	clientID, err := s.attachmentOwner(r.Context(), userFromContext(r.Context()), a.OwnerType, a.OwnerID)
	if err != nil {
		s.storeError(w, r, err, "attachment")
		return
	}
	if err := s.store.DeleteAttachment(r.Context(), a.ID); err != nil {
		s.storeError(w, r, err, "attachment")
		return
	}
	s.releaseBlobs(r.Context(), a.BlobKey)
	s.publish(r.Context(), "attachments", realtime.EventDelete, a.ID, clientID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "attachment deleted"})
}

// dropAttachments removes the attachment rows of a deleted owner and their unshared blobs.
func (s *server) dropAttachments(r *http.Request, ownerType, ownerID string, extraKeys ...string) {
	keys, err := s.store.DeleteAttachmentsFor(r.Context(), ownerType, ownerID)
	if err != nil {
		s.logger.Warn("delete attachments", zap.String("owner", ownerType), zap.String("id", ownerID), zap.Error(err))
	}
	s.releaseBlobs(r.Context(), append(keys, extraKeys...)...)
}

// releaseBlobs deletes blobs no row references any more. Content addressed keys may be shared.
func (s *server) releaseBlobs(ctx context.Context, keys ...string) {
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		inUse, err := s.store.BlobKeyInUse(ctx, key)
		if err != nil || inUse {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("delete blob", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *server) streamBlob(w http.ResponseWriter, r *http.Request, key, mime, fileName, disposition string) {
	body, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.logger.Error("read blob", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to read file")
		return
	}
	defer body.Close()
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, downloadName(fileName)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// downloadName keeps a stored file name header-safe without forcing the .pdf extension.
func downloadName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(report.SanitizeFilename(strings.TrimSuffix(name, filepath.Ext(name))), ".pdf")
	if ext == "" || len(ext) > 6 {
		ext = ".bin"
	}
	return base + ext
}

// attachmentImages loads the photos of an owner for embedding in a report. Missing blobs are skipped.
func (s *server) attachmentImages(r *http.Request, ownerType, ownerID string) []report.Image {
	items, err := s.store.ListAttachments(r.Context(), ownerType, ownerID)
	if err != nil {
		s.logger.Warn("list attachments for report", zap.Error(err))
		return nil
	}
	var out []report.Image
	for _, a := range items {
		if a.Kind != model.AttachmentPhoto {
			continue
		}
		data, err := s.readBlob(r.Context(), a.BlobKey)
		if err != nil {
			continue
		}
		out = append(out, report.Image{Name: a.FileName, Mime: a.Mime, Data: data})
	}
	return out
}

func (s *server) readBlob(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, blobstore.ErrNotFound
	}
	body, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// reportContext loads the elevator, client and technician name shown in report headers.
func (s *server) reportContext(r *http.Request, elevatorID, clientID, technicianID string) (model.Elevator, model.Client, string) {
	elevator, _ := s.store.GetElevator(r.Context(), elevatorID)
	if clientID == "" {
		clientID = elevator.ClientID
	}
	client, _ := s.store.GetClient(r.Context(), clientID)
	name := ""
	if technicianID != "" {
		if u, err := s.store.GetUser(r.Context(), technicianID); err == nil {
			name = u.FullName
		}
	}
	return elevator, client, name
}

func (s *server) renderFailed(w http.ResponseWriter, err error, what string) {
	s.logger.Error("render pdf", zap.String("resource", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "unable to render "+what+" report")
}

// servePDF writes a rendered report as a download, honouring If-None-Match.
func (s *server) servePDF(w http.ResponseWriter, r *http.Request, resource, title string, data []byte) {
	etag := report.ETag(data)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	s.metrics.PDFsRendered.WithLabelValues(resource).Inc()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.SanitizeFilename(title)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// storeSignature decodes a PNG data URL and stores it, returning the blob key.
func (s *server) storeSignature(ctx context.Context, dataURL string) (string, error) {
	data, mime, err := parseDataURLBinary(dataURL, signatureMimes, maxSignatureBytes)
	if err != nil {
		return "", err
	}
	if err := checkImageSize(data, maxSignaturePixels); err != nil {
		return "", err
	}
	key := blobstore.ContentKey("signatures", blobstore.ExtensionForMime(mime), data, s.now())
	if err := s.blobs.Put(ctx, key, mime, data); err != nil {
		s.logger.Error("store signature", zap.String("key", key), zap.Error(err))
		return "", errors.New("unable to store signature")
	}
	return key, nil
}

func parseUploadedFileWithField(r *http.Request, fieldName string, maxBytes int64, allowedMimes []string, requiredMessage string) ([]byte, string, string, error) {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if err := r.ParseMultipartForm(maxBytes + (2 << 20)); err != nil {
		return nil, "", "", errors.New("invalid upload form")
	}
	file, header, err := r.FormFile(fieldName)
	if err != nil {
		return nil, "", "", errors.New(requiredMessage)
	}
	defer file.Close()
	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", "", errors.New("unable to read uploaded file")
	}
	if len(raw) == 0 {
		return nil, "", "", errors.New("uploaded file is empty")
	}
	if int64(len(raw)) > maxBytes {
		return nil, "", "", fmt.Errorf("file exceeds %d MB", maxBytes>>20)
	}
	detected := http.DetectContentType(raw)
	if len(allowedMimes) > 0 && !mimeAllowed(allowedMimes, detected) {
		return nil, "", "", errors.New("unsupported file type")
	}
	fileName := strings.TrimSpace(filepath.Base(header.Filename))
	if fileName == "" || fileName == "." {
		fileName = fieldName + "." + blobstore.ExtensionForMime(detected)
	}
	return raw, detected, fileName, nil
}

func parseDataURLBinary(value string, allowedMimes []string, maxBytes int) ([]byte, string, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, "", errors.New("empty data url")
	}
	if !strings.HasPrefix(raw, "data:") {
		return nil, "", errors.New("invalid data url prefix")
	}
	comma := strings.Index(raw, ",")
	if comma <= 5 {
		return nil, "", errors.New("invalid data url payload")
	}
	meta := raw[5:comma]
	payload := raw[comma+1:]
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return nil, "", errors.New("data url must be base64")
	}
	mime := strings.TrimSpace(meta[:len(meta)-len(";base64")])
	if len(allowedMimes) > 0 && !mimeAllowed(allowedMimes, mime) {
		return nil, "", errors.New("unsupported data url mime type")
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errors.New("unable to decode data url")
	}
	if len(decoded) == 0 {
		return nil, "", errors.New("empty data url content")
	}
	if maxBytes > 0 && len(decoded) > maxBytes {
		return nil, "", errors.New("data url exceeds max size")
	}
	detected := http.DetectContentType(decoded)
	if !strings.EqualFold(detected, mime) {
		return nil, "", errors.New("data url mime does not match content")
	}
	return decoded, detected, nil
}

func mimeAllowed(allowed []string, mime string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), mime) {
			return true
		}
	}
	return false
}

// checkImageSize reads only the image header and rejects images whose pixel count exceeds maxPixels.
func checkImageSize(raw []byte, maxPixels int) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		cfg, err = webp.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return errors.New("unable to decode image")
		}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("invalid image dimensions")
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return fmt.Errorf("image is too large (%dx%d pixels)", cfg.Width, cfg.Height)
	}
	return nil
}

// processUploadedPhotoBytes decodes a png, jpeg or webp photo, scales it so the longer edge is at
// most maxEdge pixels and re-encodes it as PNG.
func processUploadedPhotoBytes(raw []byte, maxEdge int) ([]byte, string, error) {
	mime := http.DetectContentType(raw)
	if !mimeAllowed(photoMimes, mime) {
		return nil, "", errors.New("photo must be png, jpeg, or webp")
	}
	if err := checkImageSize(raw, maxPhotoPixels); err != nil {
		return nil, "", err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		decoded, decodeErr := webp.Decode(bytes.NewReader(raw))
		if decodeErr != nil {
			return nil, "", errors.New("unable to decode photo")
		}
		img = decoded
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, "", errors.New("invalid image dimensions")
	}

	targetW, targetH := width, height
	if longest := max(width, height); maxEdge > 0 && longest > maxEdge {
		targetW = max(1, width*maxEdge/longest)
		targetH = max(1, height*maxEdge/longest)
	}

	var out image.Image
	if targetW == width && targetH == height {
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		stddraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, stddraw.Src)
		out = rgba
	} else {
		resized := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		xdraw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, xdraw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, "", errors.New("unable to encode photo")
	}
	return buf.Bytes(), "image/png", nil
}
