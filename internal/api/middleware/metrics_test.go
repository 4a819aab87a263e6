package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method, route, status string
}

type fakeObserver struct {
	requests []recordedRequest
}

func (o *fakeObserver) ObserveRequest(method, route, status string) {
	o.requests = append(o.requests, recordedRequest{method, route, status})
}

func TestRequestsRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &fakeObserver{}

	r := gin.New()
	r.Use(Requests(observer))
	r.GET("/v1/individuals/:mk", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/individuals/abc123", nil))

	require.Len(t, observer.requests, 1)
	assert.Equal(t, recordedRequest{"GET", "/v1/individuals/:mk", "200"}, observer.requests[0])
}

func TestRequestsLabelsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &fakeObserver{}

	r := gin.New()
	r.Use(Requests(observer))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Len(t, observer.requests, 1)
	assert.Equal(t, "unmatched", observer.requests[0].route)
	assert.Equal(t, "404", observer.requests[0].status)
}
