package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"lite-rag-go/internal/config"
	"lite-rag-go/internal/pipeline"
	"lite-rag-go/internal/repository"
	"lite-rag-go/internal/service"
	"lite-rag-go/pkg/chunker"
	"lite-rag-go/pkg/embedding"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/llm"
	"lite-rag-go/pkg/storage"
	"lite-rag-go/pkg/templates"
	"lite-rag-go/pkg/vectordb"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubLLM struct {
	answer string
	err    error
	calls  int
}

func (s *stubLLM) Generate(context.Context, []llm.Message, *llm.GenerationParams) (string, error) {
	s.calls++
	return s.answer, s.err
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

func newTestRouter(t *testing.T, l llm.Client) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	emb, err := embedding.NewHashing(128)
	require.NoError(t, err)
	gw, err := vectordb.NewGateway(vectordb.NewMemory(), emb,
		config.EmbeddingConfig{Dimensions: 128}, config.VectorDBConfig{DistanceMetric: "cosine"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	store := storage.NewMemory()
	projectRepo := repository.NewProjectRepository(db)
	assetRepo := repository.NewAssetRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	defaults := config.ChunkingConfig{ChunkSize: 500, ChunkOverlap: 50}
	proc := pipeline.NewProcessor(&chunker.Splitter{}, defaults, store, assetRepo, chunkRepo, gw)

	rag, err := service.NewRAGService(gw, l, templates.MustLoadBuiltin(), config.RAGConfig{DefaultLocale: "en"})
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, Services{
		Projects:  service.NewProjectService(projectRepo, gw, store),
		Assets:    service.NewAssetService(assetRepo, chunkRepo, store, 1<<20),
		Documents: service.NewDocumentService(assetRepo, proc, nil, defaults),
		Vectors:   service.NewVectorService(chunkRepo, gw),
		RAG:       rag,
	}, RouterOptions{DefaultTopK: 5, MaxAssetSize: 1 << 20, AppName: "lite-rag", AppVersion: "test"})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func upload(t *testing.T, r http.Handler, projectID, name, content string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/p/"+projectID+"/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func createProject(t *testing.T, r http.Handler) string {
	t.Helper()
	code, env := doJSON(t, r, http.MethodPost, "/api/v1/projects", map[string]string{"name": "demo"})
	require.Equal(t, http.StatusCreated, code)
	var p struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.Equal(t, "demo", p.Name)
	return p.ID
}

func TestEndToEndFlow(t *testing.T) {
	l := &stubLLM{answer: "It is blue [1]."}
	r := newTestRouter(t, l)
	pid := createProject(t, r)

	code, _ := doJSON(t, r, http.MethodGet, "/api/v1/projects/"+pid, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = upload(t, r, pid, "sky.txt", "The sky is blue.")
	require.Equal(t, http.StatusOK, code)

	code, env := doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/documents/process", map[string]interface{}{})
	require.Equal(t, http.StatusOK, code, env.Error)

	// 未索引前检索
	code, env = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/vectors/query", map[string]interface{}{"text": "sky"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errs.KindIndexNotFound), env.Kind)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/vectors/index", map[string]bool{"do_reset": true})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = doJSON(t, r, http.MethodGet, "/api/v1/p/"+pid+"/vectors/info", nil)
	require.Equal(t, http.StatusOK, code)
	var info vectordb.IndexInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, int64(1), info.VectorCount)
	assert.Equal(t, 128, info.Dimension)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/vectors/query",
		map[string]interface{}{"text": "The sky is blue.", "top_k": 3, "threshold": 0.5})
	require.Equal(t, http.StatusOK, code)
	var qr struct {
		Matches []vectordb.Match `json:"matches"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &qr))
	assert.Equal(t, 1, qr.Count)
	assert.Equal(t, "sky.txt", qr.Matches[0].FileID)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/rag/generate",
		map[string]interface{}{"query": "What color is the sky?", "threshold": 0.3})
	require.Equal(t, http.StatusOK, code, env.Error)
	var res struct {
		Answer    string           `json:"answer"`
		Citations []vectordb.Match `json:"citations"`
		Contexts  []vectordb.Match `json:"contexts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "It is blue [1].", res.Answer)
	assert.Len(t, res.Contexts, 1)
	assert.Len(t, res.Citations, 1)

	code, _ = doJSON(t, r, http.MethodDelete, "/api/v1/projects/"+pid, nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = doJSON(t, r, http.MethodGet, "/api/v1/projects/"+pid, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errs.KindProjectNotFound), env.Kind)
}

func TestUnknownProjectIs404(t *testing.T) {
	r := newTestRouter(t, &stubLLM{answer: "x"})

	code, env := doJSON(t, r, http.MethodPost, "/api/v1/p/ghost/rag/generate", map[string]string{"query": "q"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errs.KindProjectNotFound), env.Kind)
}

func TestRagErrorMapping(t *testing.T) {
	l := &stubLLM{err: errs.Wrap(errs.KindGenerationFailed, "llm.Generate", errors.New("boom"))}
	r := newTestRouter(t, l)
	pid := createProject(t, r)

	_, _ = upload(t, r, pid, "grass.txt", "Grass is green in the spring.")
	code, _ := doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/documents/process", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/vectors/index", nil)
	require.Equal(t, http.StatusOK, code)

	code, env := doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/rag/generate", map[string]interface{}{"query": "q", "threshold": 1.5})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(errs.KindInvalidParameter), env.Kind)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/rag/generate", map[string]interface{}{"query": "q", "top_k": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(errs.KindInvalidParameter), env.Kind)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/rag/generate",
		map[string]interface{}{"query": "What color is the sky?", "threshold": 0.99})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errs.KindNoRelevantContext), env.Kind)
	assert.Equal(t, 0, l.calls)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/rag/generate",
		map[string]interface{}{"query": "Grass is green in the spring.", "threshold": 0.5})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, string(errs.KindRagGenerationFailed), env.Kind)
	assert.Equal(t, 1, l.calls)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/rag/generate",
		map[string]interface{}{"query": "Grass is green in the spring.", "locale": "fr"})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, string(errs.KindTemplateNotFound), env.Kind)
}

func TestBadRequests(t *testing.T) {
	r := newTestRouter(t, &stubLLM{answer: "x"})
	pid := createProject(t, r)

	code, env := doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/rag/generate", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(errs.KindInvalidParameter), env.Kind)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/p/"+pid+"/documents/process", map[string]string{"file_id": "nope.txt"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errs.KindAssetNotFound), env.Kind)

	code, _ = upload(t, r, pid, "bin.dat", string([]byte{0xff, 0xfe, 0xfd}))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRootAndHealth(t *testing.T) {
	r := newTestRouter(t, &stubLLM{answer: "x"})

	code, env := doJSON(t, r, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))

	code, env = doJSON(t, r, http.MethodGet, "/api/v1/", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"app_name":"lite-rag","app_version":"test"}`, string(env.Data))
}

func TestDeleteAssets(t *testing.T) {
	r := newTestRouter(t, &stubLLM{answer: "x"})
	pid := createProject(t, r)
	base := "/api/v1/p/" + pid + "/assets"

	code, env := doJSON(t, r, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errs.KindAssetNotFound), env.Kind)

	code, env = upload(t, r, pid, "a.txt", "alpha")
	require.Equal(t, http.StatusOK, code)
	var a struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &a))
	for _, name := range []string{"b.txt", "c.txt"} {
		code, _ = upload(t, r, pid, name, "content "+name)
		require.Equal(t, http.StatusOK, code)
	}

	code, _ = doJSON(t, r, http.MethodDelete, base+"/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = doJSON(t, r, http.MethodDelete, base+"/b.txt", nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = doJSON(t, r, http.MethodDelete, base+"/b.txt", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errs.KindAssetNotFound), env.Kind)

	code, env = doJSON(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, code)
	var left []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &left))
	require.Len(t, left, 1)
	assert.Equal(t, "c.txt", left[0].Name)

	code, env = doJSON(t, r, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"deleted":1}`, string(env.Data))

	code, env = doJSON(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &left))
	assert.Empty(t, left)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errs.KindInvalidParameter))
	assert.Equal(t, http.StatusNotFound, statusFor(errs.KindIndexEmpty))
	assert.Equal(t, http.StatusBadGateway, statusFor(errs.KindProviderError))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errs.KindDimensionMismatch))
	assert.Equal(t, http.StatusInternalServerError, statusFor(""))
}
