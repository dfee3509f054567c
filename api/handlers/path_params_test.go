package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"incidentreg/core/attachments"
)

func TestURLParamDecodesLocatorNames(t *testing.T) {
	names := []string{
		"flyer.pdf",
		"minutes, 2023.pdf",
		"a;b.pdf",
		"q&a.pdf",
		"50%.pdf",
		"with space.pdf",
		"a%41.pdf",
	}
	for _, name := range names {
		var got string
		r := chi.NewRouter()
		r.Get("/a/{kind}/{key}", func(w http.ResponseWriter, req *http.Request) {
			got = urlParam(req, "key")
		})
		path := attachments.Locator(attachments.KindAttachment, name)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, name, got, path)

		// Without a chi route context the path segments are decoded the same way.
		req := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, name, urlParam(req, "key"), path)
		assert.Equal(t, "attachment", urlParam(req, "kind"), path)
	}
}
