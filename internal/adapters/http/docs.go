package http

import (
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/wastemap/api"
)

const swaggerVersion = "5"

var swaggerPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@{{.Version}}/swagger-ui.css">
  <style>body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@{{.Version}}/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: {{.SpecURL}}, dom_id: '#swagger-ui', deepLinking: true});
  </script>
</body>
</html>`))

// SetupDocs serves Swagger UI at /docs and the embedded OpenAPI document at
// /docs/openapi.yaml. The page is rendered once at startup.
func SetupDocs(app *fiber.App) {
	var page strings.Builder
	if err := swaggerPage.Execute(&page, struct {
		Title, Version, SpecURL string
	}{"Wastemap API - Swagger UI", swaggerVersion, "/docs/openapi.yaml"}); err != nil {
		panic("render docs page: " + err.Error())
	}
	html := page.String()

	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Type("html", "utf-8")
		return c.SendString(html)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(api.OpenAPI)
	})
}
