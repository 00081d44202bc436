package server

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/MeKo-Tech/foodlens/internal/testutil"
	"github.com/stretchr/testify/require"
)

// stubClassifier records calls and returns a canned result or error.
type stubClassifier struct {
	mu       sync.Mutex
	result   classifier.Result
	err      error
	state    provider.State
	calls    int
	retries  int
	minConf  int
	maxTries int
	lastID   string
}

func newStub() *stubClassifier {
	return &stubClassifier{
		state: provider.StateReady,
		result: classifier.Result{
			ClassificationResult: food.ClassificationResult{Category: food.Ramen, Confidence: 82},
			Provenance:           classifier.ProvenanceModel,
			ModelState:           provider.StateReady,
			Label:                "ramen",
			Attempts:             1,
		},
	}
}

func (s *stubClassifier) Classify(_ context.Context, res preprocess.Resource) (classifier.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastID = res.ID()
	if preprocess.IsEmpty(res) {
		return classifier.Result{}, &classifier.ValidationError{Field: "resource", Reason: "missing or empty image"}
	}
	return s.result, s.err
}

func (s *stubClassifier) ClassifyWithRetry(ctx context.Context, res preprocess.Resource, minConfidence, maxRetries int) (classifier.Result, error) {
	s.mu.Lock()
	s.retries++
	s.minConf = minConfidence
	s.maxTries = maxRetries
	s.mu.Unlock()
	return s.Classify(ctx, res)
}

func (s *stubClassifier) IsConfident(r food.ClassificationResult) bool {
	return food.IsConfident(r)
}

func (s *stubClassifier) Status() provider.State { return s.state }
func (s *stubClassifier) Close() error           { return nil }

type stubStatus struct {
	state provider.State
	loads int64
	err   error
}

func (s stubStatus) Status() provider.State { return s.state }
func (s stubStatus) LoadCount() int64       { return s.loads }
func (s stubStatus) Err() error             { return s.err }

var errBoom = errors.New("boom")

func newTestServer(t *testing.T, svc classifierService, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		CORSOrigin:         "*",
		MaxUploadMB:        1,
		TimeoutSec:         5,
		RetryMinConfidence: 60,
		MaxRetries:         2,
		Version:            "test",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg, svc, nil)
	require.NoError(t, err)
	return s
}

func pngUpload(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.FoodImage(testutil.SmallSize, testutil.RamenColor))
}

// multipartRequest builds a POST /classify request with the given image and fields.
func multipartRequest(t *testing.T, filename string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if image != nil {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
