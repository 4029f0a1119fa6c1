package handler_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoflow-labs/web-client/internal/cache"
	"github.com/todoflow-labs/web-client/internal/dialog"
	"github.com/todoflow-labs/web-client/internal/dto"
	"github.com/todoflow-labs/web-client/internal/handler"
	"github.com/todoflow-labs/web-client/internal/imagefile"
	"github.com/todoflow-labs/web-client/internal/logging"
	"github.com/todoflow-labs/web-client/internal/notify"
	"github.com/todoflow-labs/web-client/internal/table"
	"github.com/todoflow-labs/web-client/internal/testkit"
	"github.com/todoflow-labs/web-client/internal/todoapi"
)

func setupRouter(t *testing.T) (http.Handler, *testkit.Backend, *imagefile.Registry) {
	t.Helper()
	backend := testkit.NewBackend(t)
	client, err := todoapi.New(backend.URL, cache.New(nil))
	require.NoError(t, err)

	previews := imagefile.NewRegistry()
	toasts := notify.NewQueue(nil)
	dlg := dialog.New(client, previews, toasts, logging.Nop())
	tbl := table.New(client, dlg, toasts, logging.Nop())
	h := handler.New(tbl, dlg, previews, toasts, logging.Nop())
	return h.Routes(), backend, previews
}

func do(t *testing.T, router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func getPage(t *testing.T, router http.Handler) string {
	t.Helper()
	resp := do(t, router, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	return resp.Body.String()
}

func postForm(t *testing.T, router http.Handler, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, router, req)
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func postMultipart(t *testing.T, router http.Handler, path string, fields map[string]string, file *upload) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="`+file.name+`"`)
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(t, router, req)
}

func png(size int) *upload {
	return &upload{name: "photo.png", contentType: "image/png", data: bytes.Repeat([]byte{7}, size)}
}

func TestIndex_EmptyState(t *testing.T) {
	router, _, _ := setupRouter(t)

	body := getPage(t, router)
	assert.Contains(t, body, "No Todos Yet")
	assert.Contains(t, body, "Get started by creating your first todo")
}

func TestIndex_PopulatedTable(t *testing.T) {
	router, backend, _ := setupRouter(t)
	img := "https://images.example.test/todos/2/cat.png"
	backend.Seed(
		dto.Todo{ID: 1, Title: "Write report"},
		dto.Todo{ID: 2, Title: "Feed cat", Completed: true, Image: &img},
	)

	body := getPage(t, router)
	assert.Contains(t, body, "My Todos")
	assert.Contains(t, body, "Write report")
	assert.Contains(t, body, "Pending")
	assert.Contains(t, body, "Completed")
	assert.Contains(t, body, img)
	assert.Contains(t, body, "2026-01-02")
}

func TestIndex_ErrorState(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.Fail(http.MethodGet, http.StatusInternalServerError, "db down")

	body := getPage(t, router)
	assert.Contains(t, body, "Error loading todos. Please try again later.")
}

func TestIndex_RecoversAfterBackendFailure(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.Seed(dto.Todo{ID: 1, Title: "Survivor"})
	backend.Fail(http.MethodGet, http.StatusInternalServerError, "db down")
	assert.Contains(t, getPage(t, router), "Error loading todos")

	backend.Recover()

	body := getPage(t, router)
	assert.NotContains(t, body, "Error loading todos")
	assert.Contains(t, body, "Survivor")
	assert.Equal(t, 2, backend.CountRequests(http.MethodGet, "/"))
}

func TestReload_RetryRefetchesList(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.Fail(http.MethodGet, http.StatusInternalServerError, "db down")
	body := getPage(t, router)
	assert.Contains(t, body, `action="/todos/reload"`)

	backend.Recover()
	backend.Seed(dto.Todo{ID: 4, Title: "Fresh"})
	resp := postForm(t, router, "/todos/reload", nil)
	assert.Equal(t, http.StatusSeeOther, resp.Code)
	assert.Equal(t, 2, backend.CountRequests(http.MethodGet, "/"))

	assert.Contains(t, getPage(t, router), "Fresh")
	assert.Equal(t, 2, backend.CountRequests(http.MethodGet, "/"))
}

func TestIndex_LoadsListOnce(t *testing.T) {
	router, backend, _ := setupRouter(t)

	getPage(t, router)
	getPage(t, router)
	assert.Equal(t, 1, backend.CountRequests(http.MethodGet, "/"))
}

func TestCreateFlow_WithImageSendsMultipart(t *testing.T) {
	router, backend, previews := setupRouter(t)
	getPage(t, router)

	resp := postForm(t, router, "/todos/new", nil)
	assert.Equal(t, http.StatusSeeOther, resp.Code)
	assert.Equal(t, "/", resp.Header().Get("Location"))
	assert.Contains(t, getPage(t, router), "Create New Todo")

	resp = postMultipart(t, router, "/dialog/submit", map[string]string{"title": "Holiday photo"}, png(2*1000*1000))
	assert.Equal(t, http.StatusSeeOther, resp.Code)

	muts := backend.Mutations()
	require.Len(t, muts, 1)
	assert.Equal(t, http.MethodPost, muts[0].Method)
	assert.True(t, muts[0].IsMultipart())
	assert.Equal(t, "Holiday photo", muts[0].Fields["title"])
	assert.Equal(t, "photo.png", muts[0].FileName)
	assert.Equal(t, "image/png", muts[0].FileType)
	assert.Equal(t, 2*1000*1000, muts[0].FileSize)
	assert.Equal(t, 0, previews.Len())

	body := getPage(t, router)
	assert.Contains(t, body, "Todo created successfully!")
	assert.Contains(t, body, "Holiday photo")
	assert.NotContains(t, body, "Create New Todo")
}

func TestCreateFlow_WithoutImageSendsJSON(t *testing.T) {
	router, backend, _ := setupRouter(t)
	postForm(t, router, "/todos/new", nil)

	postMultipart(t, router, "/dialog/submit", map[string]string{"title": "Buy milk"}, nil)

	muts := backend.Mutations()
	require.Len(t, muts, 1)
	assert.False(t, muts[0].IsMultipart())
	assert.Equal(t, map[string]any{"title": "Buy milk"}, muts[0].JSON)
}

func TestDialogSubmit_OversizedImageSendsNothing(t *testing.T) {
	router, backend, _ := setupRouter(t)
	postForm(t, router, "/todos/new", nil)

	resp := postMultipart(t, router, "/dialog/submit", map[string]string{"title": "Big"}, png(6*1024*1024))
	assert.Equal(t, http.StatusSeeOther, resp.Code)
	assert.Empty(t, backend.Mutations())

	body := getPage(t, router)
	assert.Contains(t, body, "File size must be less than 5MB.")
	assert.Contains(t, body, "Create New Todo")
}

func TestDialogSubmit_BlankTitleWarns(t *testing.T) {
	router, backend, _ := setupRouter(t)
	postForm(t, router, "/todos/new", nil)

	postMultipart(t, router, "/dialog/submit", map[string]string{"title": "  "}, nil)

	assert.Empty(t, backend.Mutations())
	assert.Contains(t, getPage(t, router), "Please enter a title")
}

func TestDialogImage_PreviewIsServedUntilRemoved(t *testing.T) {
	router, _, previews := setupRouter(t)
	postForm(t, router, "/todos/new", nil)

	postMultipart(t, router, "/dialog/image", nil, png(64))
	require.Equal(t, 1, previews.Len())

	ref := regexp.MustCompile(`/previews/[0-9a-f-]+`).FindString(getPage(t, router))
	require.NotEmpty(t, ref)

	resp := do(t, router, httptest.NewRequest(http.MethodGet, ref, nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "image/png", resp.Header().Get("Content-Type"))
	data, _ := io.ReadAll(resp.Body)
	assert.Len(t, data, 64)

	postForm(t, router, "/dialog/image/remove", nil)
	assert.Equal(t, 0, previews.Len())
	resp = do(t, router, httptest.NewRequest(http.MethodGet, ref, nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDialogClose_ReleasesPreview(t *testing.T) {
	router, _, previews := setupRouter(t)
	postForm(t, router, "/todos/new", nil)
	postMultipart(t, router, "/dialog/image", nil, png(64))

	postForm(t, router, "/dialog/close", nil)

	assert.Equal(t, 0, previews.Len())
	assert.NotContains(t, getPage(t, router), "Create New Todo")
}

func TestEdit_OpensUpdateDialog(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.Seed(dto.Todo{ID: 3, Title: "Call mom"})
	getPage(t, router)

	postForm(t, router, "/todos/3/edit", nil)
	body := getPage(t, router)
	assert.Contains(t, body, "Update Todo")
	assert.Contains(t, body, `value="Call mom"`)

	postMultipart(t, router, "/dialog/submit", map[string]string{"title": "Call dad", "completed": "true"}, nil)

	muts := backend.Mutations()
	require.Len(t, muts, 1)
	assert.Equal(t, http.MethodPatch, muts[0].Method)
	assert.Equal(t, "/3", muts[0].Path)
	assert.Equal(t, map[string]any{"title": "Call dad", "completed": true}, muts[0].JSON)
}

func TestToggle_PredictsMessageFromRow(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.Seed(dto.Todo{ID: 1, Title: "Stretch"})
	getPage(t, router)

	resp := postForm(t, router, "/todos/1/toggle", nil)
	assert.Equal(t, http.StatusSeeOther, resp.Code)
	assert.Equal(t, 1, backend.CountRequests(http.MethodPatch, "/1/toggle"))
	assert.Contains(t, getPage(t, router), "Task completed!")
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.Seed(dto.Todo{ID: 5, Title: "Old task"})
	getPage(t, router)

	postForm(t, router, "/todos/5/delete", nil)
	assert.Zero(t, backend.CountRequests(http.MethodDelete, "/5"))

	postForm(t, router, "/todos/5/delete", url.Values{"confirm": {"yes"}})
	assert.Equal(t, 1, backend.CountRequests(http.MethodDelete, "/5"))

	body := getPage(t, router)
	assert.Contains(t, body, "Todo deleted successfully!")
	assert.Contains(t, body, "No Todos Yet")
}

func TestUploadImage_RowUpload(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.Seed(dto.Todo{ID: 9, Title: "Garden"})
	getPage(t, router)

	postMultipart(t, router, "/todos/9/image", nil, png(1024))

	muts := backend.Mutations()
	require.Len(t, muts, 1)
	assert.Equal(t, http.MethodPatch, muts[0].Method)
	assert.Equal(t, "/9", muts[0].Path)
	assert.True(t, muts[0].IsMultipart())
	assert.Contains(t, getPage(t, router), "Image uploaded successfully!")
}

func TestUploadImage_RejectsWrongType(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.Seed(dto.Todo{ID: 9, Title: "Garden"})
	getPage(t, router)

	postMultipart(t, router, "/todos/9/image", nil, &upload{name: "notes.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4")})

	assert.Empty(t, backend.Mutations())
	assert.Contains(t, getPage(t, router), "Invalid file type")
}

func TestInvalidIDAndUnknownRoute(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := postForm(t, router, "/todos/abc/toggle", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.JSONEq(t, `{"error":"invalid todo id"}`, resp.Body.String())

	resp = do(t, router, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(t, router, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestDialogSubmit_SurvivesClientDisconnect(t *testing.T) {
	router, backend, _ := setupRouter(t)
	getPage(t, router)
	postForm(t, router, "/todos/new", nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "Buy milk"))
	require.NoError(t, mw.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/dialog/submit", &body).WithContext(ctx)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := do(t, router, req)
	assert.Equal(t, http.StatusSeeOther, resp.Code)

	todos := backend.Todos()
	require.Len(t, todos, 1)
	assert.Equal(t, "Buy milk", todos[0].Title)

	page := getPage(t, router)
	assert.Contains(t, page, "Buy milk")
	assert.NotContains(t, page, "Error loading todos")
}

func TestToggle_SurvivesClientDisconnect(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.Seed(dto.Todo{ID: 1, Title: "Stretch"})
	getPage(t, router)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/todos/1/toggle", nil).WithContext(ctx)
	do(t, router, req)

	assert.Equal(t, 1, backend.CountRequests(http.MethodPatch, "/1/toggle"))
	assert.True(t, backend.Todos()[0].Completed)
}

func TestToasts_ShownOncePerProcess(t *testing.T) {
	router, _, _ := setupRouter(t)
	postForm(t, router, "/todos/new", nil)
	postMultipart(t, router, "/dialog/submit", map[string]string{"title": " "}, nil)

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:5000"
	assert.Contains(t, do(t, router, first).Body.String(), "Please enter a title")

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.2:5000"
	body := do(t, router, second).Body.String()
	assert.NotContains(t, body, "Please enter a title")
	assert.Contains(t, body, "Create New Todo")
}
