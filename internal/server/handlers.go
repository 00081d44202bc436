package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/places"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
)

const multipartMemory = 8 << 20

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// modelStatusHandler reports the model provider state.
func (s *Server) modelStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := ModelStatusResponse{State: s.classifier.Status()}
	if s.model != nil {
		resp.State = s.model.Status()
		resp.LoadCount = s.model.LoadCount()
		if err := s.model.Err(); err != nil {
			resp.Error = err.Error()
		}
	}
	resp.Ready = resp.State == provider.StateReady
	ObserveModelState(resp.State)
	s.writeJSON(w, http.StatusOK, resp)
}

// categoriesHandler lists the supported food categories.
func (s *Server) categoriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cats := food.Categories()
	out := make([]CategoryInfo, len(cats))
	for i, c := range cats {
		out[i] = CategoryInfo{ID: c, DisplayName: food.DisplayName(c), SearchKeyword: food.SearchKeyword(c)}
	}
	s.writeJSON(w, http.StatusOK, CategoriesResponse{Categories: out, Count: len(out)})
}

// classifyRequest holds parsed /classify parameters.
type classifyRequest struct {
	resource      preprocess.Resource
	retry         bool
	minConfidence int
	maxRetries    int
}

// classifyHandler classifies an uploaded image.
func (s *Server) classifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requestID := RequestIDFromContext(r.Context())

	req, err := s.parseClassifyRequest(w, r, requestID)
	if err != nil {
		s.writeErrorResponse(w, requestID, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.runClassification(ctx, req)
	if err != nil {
		var ve *classifier.ValidationError
		if errors.As(err, &ve) {
			s.writeErrorResponse(w, requestID, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.ErrorContext(ctx, "classification failed", "request_id", requestID, "error", err)
		s.writeErrorResponse(w, requestID, "classification failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, ClassifyResponse{
		Success:   true,
		RequestID: requestID,
		Result:    s.payload(res),
	})
}

func (s *Server) runClassification(ctx context.Context, req classifyRequest) (classifier.Result, error) {
	var (
		res classifier.Result
		err error
	)
	if req.retry {
		res, err = s.classifier.ClassifyWithRetry(ctx, req.resource, req.minConfidence, req.maxRetries)
	} else {
		res, err = s.classifier.Classify(ctx, req.resource)
	}
	if err != nil {
		return res, err
	}
	recordClassification(res)
	return res, nil
}

func recordClassification(res classifier.Result) {
	classificationsTotal.WithLabelValues(string(res.Provenance), string(res.Category)).Inc()
	classificationDuration.WithLabelValues(string(res.Provenance)).Observe(res.Duration.Seconds())
	classificationConfidence.Observe(float64(res.Confidence))
	classificationAttempts.Observe(float64(res.Attempts))
}

// parseClassifyRequest reads the multipart "image" field and retry options.
func (s *Server) parseClassifyRequest(w http.ResponseWriter, r *http.Request, requestID string) (classifyRequest, error) {
	req := classifyRequest{minConfidence: s.retryMinConfidence, maxRetries: s.maxRetries}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return req, fmt.Errorf("upload exceeds %d bytes", s.maxUploadBytes)
		}
		return req, fmt.Errorf("failed to parse form: %w", err)
	}

	id, data, err := readUpload(r)
	if err != nil {
		return req, err
	}
	uploadSizeBytes.Observe(float64(len(data)))
	if id == "" {
		id = "upload-" + requestID
	}
	req.resource = preprocess.NewBytesResource(id, data)

	if v := r.FormValue("retry"); v != "" {
		if req.retry, err = strconv.ParseBool(v); err != nil {
			return req, fmt.Errorf("invalid retry value %q", v)
		}
	}
	if v := r.FormValue("min_confidence"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < food.MinConfidence || n > food.MaxConfidence {
			return req, fmt.Errorf("invalid min_confidence %q (must be 0-100)", v)
		}
		req.minConfidence = n
	}
	if v := r.FormValue("max_retries"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, fmt.Errorf("invalid max_retries %q (must be a positive integer)", v)
		}
		req.maxRetries = n
	}
	return req, nil
}

// readUpload returns the "image" part and its filename. mime/multipart files a
// part without a filename as a plain value, so that is accepted too.
func readUpload(r *http.Request) (string, []byte, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) && r.MultipartForm != nil {
		if vals := r.MultipartForm.Value["image"]; len(vals) > 0 {
			return "", []byte(vals[0]), nil
		}
	}
	if err != nil {
		return "", nil, errors.New("missing image field")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read image: %w", err)
	}
	return header.Filename, data, nil
}

// restaurantsHandler lists restaurants near a location for a category.
func (s *Server) restaurantsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	category := food.Category(strings.ToLower(strings.TrimSpace(q.Get("category"))))
	if !category.Valid() {
		category = food.DefaultCategory
	}

	loc, err := s.parseLocation(q.Get("lat"), q.Get("lng"))
	if err != nil {
		s.writeErrorResponse(w, RequestIDFromContext(r.Context()), err.Error(), http.StatusBadRequest)
		return
	}

	limit := s.placesLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeErrorResponse(w, RequestIDFromContext(r.Context()), "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := s.places.Nearby(r.Context(), loc, category, limit)
	if err != nil {
		s.writeErrorResponse(w, RequestIDFromContext(r.Context()), err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, RestaurantsResponse{
		Category:    category,
		Location:    loc,
		Restaurants: list,
		Count:       len(list),
	})
}

// parseLocation requires both coordinates or neither.
func (s *Server) parseLocation(lat, lng string) (places.Location, error) {
	if lat == "" && lng == "" {
		return s.defaultLocation, nil
	}
	if lat == "" || lng == "" {
		return places.Location{}, errors.New("lat and lng must be given together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return places.Location{}, fmt.Errorf("invalid lat %q", lat)
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return places.Location{}, fmt.Errorf("invalid lng %q", lng)
	}
	loc := places.Location{Latitude: la, Longitude: lo}
	return loc, loc.Validate()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, requestID, message string, statusCode int) {
	s.writeJSON(w, statusCode, ClassifyResponse{
		Success:   false,
		RequestID: requestID,
		Error:     message,
	})
}
