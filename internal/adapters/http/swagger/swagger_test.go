package swagger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestSwaggerHandler(t *testing.T) {
	convey.Convey("Given a swagger handler", t, func() {
		mux := http.NewServeMux()

		convey.Convey("When registering the swagger handler", func() {
			Register(mux)

			convey.Convey("Then it should handle /openapi.yaml route", func() {
				req := httptest.NewRequest("GET", "/openapi.yaml", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/healthz")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/stats")
			})

			convey.Convey("And it should handle /api-docs route", func() {
				req := httptest.NewRequest("GET", "/api-docs", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "get /healthz")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "get /metrics")
				convey.So(w.Body.String(), convey.ShouldNotContainSubstring, "<script")
			})
		})

		convey.Convey("When registering on a nil mux", func() {
			convey.Convey("Then it panics", func() {
				convey.So(func() { Register(nil) }, convey.ShouldPanic)
			})
		})
	})
}

func TestRender(t *testing.T) {
	convey.Convey("Given OpenAPI documents", t, func() {
		convey.Convey("When rendering a valid one", func() {
			out, err := Render([]byte(`
info: {title: ops, version: "2"}
paths:
  /b: {get: {summary: second, responses: {"200": {description: fine}}}}
  /a: {post: {summary: "<first>", responses: {"503": {description: down}, "200": {description: up}}}}
`))

			convey.Convey("Then routes are listed in path order and escaped", func() {
				convey.So(err, convey.ShouldBeNil)
				html := string(out)
				convey.So(strings.Index(html, "post /a"), convey.ShouldBeLessThan, strings.Index(html, "get /b"))
				convey.So(strings.Index(html, ">200<"), convey.ShouldBeLessThan, strings.Index(html, ">503<"))
				convey.So(html, convey.ShouldContainSubstring, "&lt;first&gt;")
			})
		})

		convey.Convey("When the document has no paths", func() {
			_, err := Render([]byte("info: {title: ops}\n"))

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, ErrSpec), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the document is not YAML", func() {
			_, err := Render([]byte("paths: [unterminated"))

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, ErrSpec), convey.ShouldBeTrue)
			})
		})
	})
}
