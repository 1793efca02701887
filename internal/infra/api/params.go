package api

import (
	"fmt"
	"net/http"
	"strings"

	"research-orchestrator/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// pathParam binds a simple-style path segment the way generated servers do,
// so escaped ids are decoded consistently across routes.
func pathParam(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return "", fmt.Errorf("%w: missing %s", domain.ErrInvalidArgument, name)
	}
	var v string
	if err := runtime.BindStyledParameterWithLocation("simple", false, name, runtime.ParamLocationPath, raw, &v); err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, name, err)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: missing %s", domain.ErrInvalidArgument, name)
	}
	return v, nil
}

func pathHasPrefix(r *http.Request, prefix string) bool {
	return strings.HasPrefix(r.URL.Path, prefix)
}
