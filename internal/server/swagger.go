package server

import (
	_ "embed"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// The API document is maintained by hand in swagger.json and served
// through the swagger UI at /docs.

//go:embed swagger.json
var swaggerJSON []byte

func swaggerUIHandler() http.HandlerFunc {
	return httpSwagger.Handler(httpSwagger.URL("/docs/doc.json"))
}

func serveSwaggerJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(swaggerJSON)
}
