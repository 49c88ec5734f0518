package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/BradenHooton/iplanding/internal/services"
	pkghttp "github.com/BradenHooton/iplanding/pkg/http"
)

// maxSubmissionBody bounds the request body of a form post.
const maxSubmissionBody = 64 << 10

// VisitorService is the pipeline behind the public endpoints.
type VisitorService interface {
	HandleSubmission(ctx context.Context, req services.SubmissionRequest) services.SubmissionOutcome
	RecordPageView(ctx context.Context, req services.PageViewRequest) services.PageViewOutcome
}

// VisitorHandler serves the landing page hit and the form endpoint.
type VisitorHandler struct {
	service VisitorService
	logger  *slog.Logger
	now     func() time.Time
}

func NewVisitorHandler(service VisitorService, logger *slog.Logger) *VisitorHandler {
	return &VisitorHandler{service: service, logger: logger, now: time.Now}
}

// SubmitRequest is the JSON body accepted by POST /submit. Form posts use
// the same field names; any other form field lands in Extra.
type SubmitRequest struct {
	Name    string            `json:"name"`
	Email   string            `json:"email"`
	Message string            `json:"message"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// SubmitResponse is returned with 201 Created.
type SubmitResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	GeoStatus string `json:"geo_status"`
}

// Index handles GET /. The page view is logged best effort; the response
// never depends on it.
func (h *VisitorHandler) Index(w http.ResponseWriter, r *http.Request) {
	userAgent, hasUserAgent := userAgentOf(r)
	outcome := h.service.RecordPageView(r.Context(), services.PageViewRequest{
		TransportAddr: r.RemoteAddr,
		Header:        r.Header,
		UserAgent:     userAgent,
		HasUserAgent:  hasUserAgent,
		Now:           h.now(),
	})
	if outcome.Kind == services.PageViewStorageUnavailable {
		h.logger.Warn("page view not recorded", slog.String("path", r.URL.Path))
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Submit handles POST /submit with either a JSON or a form-encoded body.
func (h *VisitorHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBody)

	form, err := decodeSubmission(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return
		}
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	userAgent, hasUserAgent := userAgentOf(r)
	outcome := h.service.HandleSubmission(r.Context(), services.SubmissionRequest{
		TransportAddr: r.RemoteAddr,
		Header:        r.Header,
		UserAgent:     userAgent,
		HasUserAgent:  hasUserAgent,
		Form:          form,
		Now:           h.now(),
	})

	switch outcome.Kind {
	case services.SubmissionAccepted:
		pkghttp.WriteJSON(w, http.StatusCreated, SubmitResponse{
			ID:        outcome.RecordID.String(),
			Status:    "accepted",
			GeoStatus: string(outcome.Record.GeoStatus),
		})
	case services.SubmissionRateLimited:
		pkghttp.WriteTooManyRequestsRetryAfter(w, "Too many submissions. Please try again later.", outcome.RetryAfter)
	case services.SubmissionValidationFailed:
		pkghttp.WriteValidationFailed(w, outcome.Validation.Field, outcome.Validation.Reason)
	case services.SubmissionStorageUnavailable:
		pkghttp.WriteServiceUnavailable(w, "Submission could not be saved. Please try again later.")
	default:
		h.logger.Error("unknown submission outcome", slog.String("kind", string(outcome.Kind)))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func decodeSubmission(r *http.Request) (*models.FormFields, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var req SubmitRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, err
		}
		return &models.FormFields{Name: req.Name, Email: req.Email, Message: req.Message, Extra: req.Extra}, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	form := &models.FormFields{
		Name:    r.PostForm.Get("name"),
		Email:   r.PostForm.Get("email"),
		Message: r.PostForm.Get("message"),
	}
	for key, values := range r.PostForm {
		switch key {
		case "name", "email", "message":
			continue
		}
		if form.Extra == nil {
			form.Extra = make(map[string]string)
		}
		form.Extra[key] = strings.Join(values, ", ")
	}
	return form, nil
}

// userAgentOf distinguishes a missing header from an empty one.
func userAgentOf(r *http.Request) (string, bool) {
	values, ok := r.Header["User-Agent"]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}
