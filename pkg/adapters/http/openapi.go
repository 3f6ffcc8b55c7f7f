package http

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var rawSpec []byte

// maxBodySize bounds request bodies before they are decoded.
const maxBodySize = 64 << 10

// GetSpec returns the parsed and validated API document.
var GetSpec = sync.OnceValues(func() (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
})

// apiRouter matches requests to the operations of the API document.
var apiRouter = sync.OnceValues(func() (routers.Router, error) {
	doc, err := GetSpec()
	if err != nil {
		return nil, err
	}
	return gorillamux.NewRouter(doc)
})

// validateBody checks requests, bodies included, against the operation the
// API document declares for them.
func validateBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		router, err := apiRouter()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		route, pathParams, err := router.FindRoute(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("route %s %s is not documented: %w", r.Method, r.URL.Path, err))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
			return
		}
		next.ServeHTTP(w, r)
	})
}
