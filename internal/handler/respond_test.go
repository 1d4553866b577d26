package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"commune/backend/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsTaxonomyToStatuses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{apperr.SelfReference("cannot friend yourself"), http.StatusConflict, "self_reference", "cannot friend yourself"},
		{apperr.Conflict("already friends"), http.StatusConflict, "conflict", "already friends"},
		{apperr.Forbidden("not a participant"), http.StatusForbidden, "forbidden", "not a participant"},
		{apperr.NotFound("conversation not found"), http.StatusNotFound, "not_found", "conversation not found"},
		{apperr.Validation("malformed cursor"), http.StatusBadRequest, "validation", "malformed cursor"},
		// Untyped errors never leak their message.
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "internal", "internal error"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		respondError(c, tc.err)

		assert.Equal(t, tc.status, rec.Code, tc.code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Code)
		assert.Equal(t, tc.message, body.Message)
	}
}
