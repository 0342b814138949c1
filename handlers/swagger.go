package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers the API documentation endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>notaryd API docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document for the public and operator routes. Operator routes
// require a bearer token carrying the notary-operator role.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "notaryd", "version": "v0.1.0" },
  "components": { "securitySchemes": { "operator": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } } },
  "paths": {
    "/api/documents": {
      "get": { "summary": "List cached documents (filters: owner, notary, notarized)", "responses": { "200": { "description": "documents" } } },
      "post": {
        "summary": "Register a document (JSON with base64 content, or multipart file upload)",
        "requestBody": { "content": {
          "application/json": { "schema": {"type":"object","properties":{"fingerprint":{"type":"string"},"name":{"type":"string"},"owner":{"type":"string"},"content":{"type":"string","format":"byte"}}}},
          "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"},"fingerprint":{"type":"string"},"name":{"type":"string"},"owner":{"type":"string"}}}}
        }},
        "responses": { "201": { "description": "registered" }, "409": { "description": "duplicate fingerprint" }, "422": { "description": "fingerprint mismatch" } }
      }
    },
    "/api/documents/{fingerprint}": {
      "get": { "summary": "Get a document by fingerprint", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Rename (local metadata only)", "responses": { "200": { "description": "document" } } },
      "delete": { "summary": "Drop the cached projection", "security": [{"operator": []}], "responses": { "204": { "description": "deleted" } } }
    },
    "/api/documents/{fingerprint}/content": { "get": { "summary": "Download content; altered bytes are refused", "responses": { "200": { "description": "bytes" }, "422": { "description": "content altered" } } } },
    "/api/documents/{fingerprint}/notarize": {
      "post": { "summary": "Notarize as a notary (body notary or X-Notary-Address)", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"notary":{"type":"string"},"content":{"type":"string","format":"byte"}}}}}}, "responses": { "200": { "description": "document" }, "409": { "description": "double notarization; the notary was slashed" } } }
    },
    "/api/documents/{fingerprint}/verification": { "get": { "summary": "Verification status (hash, ledger, availability)", "responses": { "200": { "description": "status" } } } },
    "/api/documents/{fingerprint}/verify": { "post": { "summary": "Manual verification; stamps lastVerifiedAt", "responses": { "200": { "description": "result" } } } },
    "/api/documents/{fingerprint}/audit": { "post": { "summary": "Integrity audit; slashes notaries on a hash mismatch", "security": [{"operator": []}], "responses": { "200": { "description": "result and slashed notaries" } } } },
    "/api/verifications": { "post": { "summary": "Batch verification", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"fingerprints":{"type":"array","items":{"type":"string"}}}}}}}, "responses": { "200": { "description": "per-item results" } } } },
    "/api/verifications/due": { "get": { "summary": "Documents needing verification", "responses": { "200": { "description": "documents" } } } },
    "/api/content/{cid}/document": { "get": { "summary": "Get a document by content address", "responses": { "200": { "description": "document" } } } },
    "/api/owners/{owner}/documents": { "get": { "summary": "Owner documents as recorded on the ledger", "responses": { "200": { "description": "documents" } } } },
    "/api/notaries": {
      "get": { "summary": "List notaries (active=true for active only)", "responses": { "200": { "description": "notaries" } } },
      "post": { "summary": "Register a notary with the exact required stake", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"address":{"type":"string"},"name":{"type":"string"},"stake":{"type":"string"}}}}}}, "responses": { "201": { "description": "registered" }, "409": { "description": "stake mismatch or already registered" } } }
    },
    "/api/notaries/{address}": { "get": { "summary": "Notary statistics", "responses": { "200": { "description": "statistics" } } } },
    "/api/notaries/{address}/reputation": { "get": { "summary": "Reputation score", "responses": { "200": { "description": "score" } } } },
    "/api/notaries/{address}/slashes": { "get": { "summary": "Slash events", "responses": { "200": { "description": "events" } } } },
    "/api/notaries/{address}/withdraw": { "post": { "summary": "Withdraw stake of an inactive notary", "responses": { "200": { "description": "notary" }, "409": { "description": "still active or nothing to withdraw" } } } },
    "/api/notaries/{address}/stake": { "post": { "summary": "Top up stake", "responses": { "200": { "description": "notary" } } } },
    "/api/notaries/{address}/slash": { "post": { "summary": "Slash a notary", "security": [{"operator": []}], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"contentAddress":{"type":"string"},"fingerprint":{"type":"string"},"reason":{"type":"string","enum":["DOUBLE_NOTARIZATION","INTEGRITY_VIOLATION","OPERATOR_ACTION"]}}}}}}, "responses": { "200": { "description": "slash event" } } } },
    "/api/notaries/{address}/deactivate": { "post": { "summary": "Deactivate a notary", "security": [{"operator": []}], "responses": { "200": { "description": "notary" } } } },
    "/api/notaries/{address}/reconcile": { "post": { "summary": "Overwrite the cached record with the ledger's", "security": [{"operator": []}], "responses": { "200": { "description": "notary" } } } },
    "/api/v1/me": { "get": { "summary": "Caller claims and operator flag", "responses": { "200": { "description": "claims" } } } },
    "/api/v1/logout": { "post": { "summary": "Revoke the presented token until it expires", "security": [{"operator": []}], "responses": { "204": { "description": "revoked" }, "401": { "description": "invalid token" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check (ledger, cache, content)", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
