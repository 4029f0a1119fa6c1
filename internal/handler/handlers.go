package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/todoflow-labs/web-client/internal/dialog"
	"github.com/todoflow-labs/web-client/internal/dto"
	"github.com/todoflow-labs/web-client/internal/imagefile"
	"github.com/todoflow-labs/web-client/internal/logging"
	"github.com/todoflow-labs/web-client/internal/notify"
	"github.com/todoflow-labs/web-client/internal/table"
)

// maxRequestBytes bounds a whole form post; larger bodies are reported as an
// oversized image.
const maxRequestBytes = 16 << 20

const maxFormMemory = 8 << 20

type Handler struct {
	table    *table.Controller
	dialog   *dialog.Controller
	previews *imagefile.Registry
	toasts   *notify.Queue
	logger   *logging.Logger
}

func New(tbl *table.Controller, dlg *dialog.Controller, previews *imagefile.Registry, toasts *notify.Queue, logger *logging.Logger) *Handler {
	l := logger.With().Str("component", "handler").Logger()
	return &Handler{
		table:    tbl,
		dialog:   dlg,
		previews: previews,
		toasts:   toasts,
		logger:   &l,
	}
}

// Index renders the page. The list query runs on first visit and again on
// any visit after a failed fetch; otherwise the last refetch is shown.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	_ = h.table.Load(r.Context())

	data := pageData{
		View:   h.table.View(),
		Dialog: h.dialog.State(),
		Toasts: h.toasts.Drain(),
		Accept: strings.Join(imagefile.AllowedTypes, ","),
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		h.logger.Error().Err(err).Msg("failed to render page")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// Reload refetches the list on demand, the retry control of the error view.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.table.Reload(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("reload of todos failed")
	}
	back(w, r)
}

func (h *Handler) OpenCreate(w http.ResponseWriter, r *http.Request) {
	h.table.Create()
	back(w, r)
}

func (h *Handler) OpenEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}
	if err := h.table.Edit(id); err != nil {
		h.logger.Warn().Err(err).Int64("todo_id", id).Msg("edit of unknown todo")
	}
	back(w, r)
}

// SubmitDialog takes the whole dialog form: title, completed and an optional
// image. An invalid image stops the submit so nothing is sent.
func (h *Handler) SubmitDialog(w http.ResponseWriter, r *http.Request) {
	img, hasImage, ok := h.readForm(w, r)
	if !ok {
		back(w, r)
		return
	}
	h.dialog.SetTitle(r.FormValue("title"))
	if h.dialog.State().Mode == dialog.ModeUpdate {
		h.dialog.SetCompleted(r.FormValue("completed") == "true")
	}
	if hasImage {
		if err := h.dialog.SelectFile(img); err != nil {
			back(w, r)
			return
		}
	}
	if err := h.dialog.Submit(detach(r)); err != nil {
		h.logger.Debug().Err(err).Msg("dialog submit did not complete")
	}
	back(w, r)
}

func (h *Handler) SelectDialogImage(w http.ResponseWriter, r *http.Request) {
	img, hasImage, ok := h.readForm(w, r)
	if ok && hasImage {
		_ = h.dialog.SelectFile(img)
	}
	back(w, r)
}

func (h *Handler) RemoveDialogImage(w http.ResponseWriter, r *http.Request) {
	h.dialog.RemoveImage()
	back(w, r)
}

func (h *Handler) CloseDialog(w http.ResponseWriter, r *http.Request) {
	h.dialog.Close()
	back(w, r)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}
	if err := h.table.Toggle(detach(r), id); errors.Is(err, table.ErrBusy) {
		h.logger.Debug().Int64("todo_id", id).Msg("toggle already in flight")
	}
	back(w, r)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}
	confirmed := r.FormValue("confirm") == "yes"
	if err := h.table.Delete(detach(r), id, confirmed); errors.Is(err, table.ErrNotConfirmed) {
		h.logger.Debug().Int64("todo_id", id).Msg("delete not confirmed")
	}
	back(w, r)
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}
	img, hasImage, ok := h.readForm(w, r)
	if ok && hasImage {
		_, _ = h.table.UploadImage(detach(r), id, img)
	}
	back(w, r)
}

// Preview serves the bytes behind a live local preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.previews.Open(chi.URLParam(r, "ref"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (h *Handler) todoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid todo id")
		return 0, false
	}
	return id, true
}

// readForm parses a multipart post and returns its "image" file, if one was
// chosen. Reading stops one byte past the size limit so oversized files are
// still recognised without being buffered whole.
func (h *Handler) readForm(w http.ResponseWriter, r *http.Request) (dto.Image, bool, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.toasts.Notify(notify.Error, imagefile.ErrTooLarge.Error())
			return dto.Image{}, false, false
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			h.logger.Warn().Err(err).Msg("invalid form post")
			return dto.Image{}, false, false
		}
		_ = r.ParseForm()
		return dto.Image{}, false, true
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return dto.Image{}, false, true
	}
	if err != nil {
		h.logger.Warn().Err(err).Msg("unreadable image part")
		return dto.Image{}, false, false
	}
	defer file.Close()
	if header.Filename == "" && header.Size == 0 {
		return dto.Image{}, false, true
	}

	data, err := io.ReadAll(io.LimitReader(file, imagefile.MaxSize+1))
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to read image part")
		return dto.Image{}, false, false
	}
	return dto.Image{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true, true
}

// detach keeps a mutation and its refetch running when the browser goes away
// mid-request. The HTTP client timeout still bounds the call.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// back sends the browser to the page after a form post.
func back(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
