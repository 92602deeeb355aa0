package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/repository"
	"github.com/samueldervishii/llm-council/internal/service"
	"github.com/samueldervishii/llm-council/internal/service/council"
	"github.com/samueldervishii/llm-council/internal/service/orchestrator"
	"github.com/samueldervishii/llm-council/internal/service/statemachine"
)

func TestRespondErrorStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", repository.ErrSessionNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", repository.ErrSessionNotFound), http.StatusNotFound},
		{"not shared", service.ErrNotShared, http.StatusNotFound},
		{"responses required", council.ErrResponsesRequired, http.StatusBadRequest},
		{"reviews required", council.ErrReviewsRequired, http.StatusBadRequest},
		{"mode mismatch", council.ErrModeMismatch, http.StatusBadRequest},
		{"no rounds", service.ErrNoRounds, http.StatusBadRequest},
		{"round not complete", service.ErrRoundNotComplete, http.StatusBadRequest},
		{"invalid transition", &statemachine.InvalidRoundTransitionError{Mode: string(model.CouncilModeFormal), From: string(model.RoundStatusPending), To: string(model.RoundStatusSynthesized)}, http.StatusBadRequest},
		{"busy", orchestrator.ErrSessionBusy, http.StatusConflict},
		{"queue full", orchestrator.ErrQueueFull, http.StatusServiceUnavailable},
		{"synthesis failed", fmt.Errorf("%w: %w", council.ErrSynthesisFailed, errors.New("502 upstream")), http.StatusBadGateway},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestPreconditionMessage(t *testing.T) {
	assert.Equal(t, "No rounds in session", preconditionMessage(service.ErrNoRounds))
	assert.Equal(t, "Previous round must be completed before continuing",
		preconditionMessage(fmt.Errorf("continue: %w", service.ErrRoundNotComplete)))
	assert.Equal(t, "must collect responses first", preconditionMessage(council.ErrResponsesRequired))
}

func TestRequestBaseURL(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "http://localhost:8000/api/sessions/x/share-info", nil)
	assert.Equal(t, "http://localhost:8000", requestBaseURL(c))

	c.Request.Header.Set("X-Forwarded-Proto", "https")
	c.Request.Header.Set("X-Forwarded-Host", "council.example.com")
	assert.Equal(t, "https://council.example.com", requestBaseURL(c))
}
