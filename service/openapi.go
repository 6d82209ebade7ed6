package service

import (
	"net/http"
	"regexp"
	"strconv"
)

var pathParam = regexp.MustCompile(`\{([a-z]+)\}`)

// route is one operator endpoint. The same table feeds the mux and the
// OpenAPI document.
type route struct {
	method  string
	path    string
	summary string
	tag     string
	query   []string
	codes   []int
	handler http.HandlerFunc
}

func (s *Server) openAPI() *OpenAPIDocument {
	doc := &OpenAPIDocument{
		OpenAPI: "3.0.3",
		Info: InfoSpec{
			Title:       "cellbus",
			Description: "Cell registry, dispatch bus and composition orchestrator",
			Version:     s.version,
		},
		Paths: make(map[string]PathSpec),
		Tags: []TagSpec{
			{Name: "Cells", Description: "Publishing, resolution and channels"},
			{Name: "Dispatch", Description: "Remote action invocation"},
			{Name: "Tissues", Description: "Multi-step pipelines"},
			{Name: "Organs", Description: "Groups of tissues"},
			{Name: "System", Description: "Health and metrics"},
		},
	}
	for _, rt := range s.routes() {
		op := &OperationSpec{
			Summary:   rt.summary,
			Tags:      []string{rt.tag},
			Responses: make(map[string]ResponseSpec, len(rt.codes)+1),
		}
		for _, m := range pathParam.FindAllStringSubmatch(rt.path, -1) {
			op.Parameters = append(op.Parameters, ParameterSpec{
				Name: m[1], In: "path", Required: true, Schema: Schema{Type: "string"},
			})
		}
		for _, q := range rt.query {
			op.Parameters = append(op.Parameters, ParameterSpec{Name: q, In: "query", Schema: Schema{Type: "string"}})
		}
		op.Responses["200"] = ResponseSpec{Description: "OK"}
		for _, code := range rt.codes {
			op.Responses[strconv.Itoa(code)] = ResponseSpec{Description: http.StatusText(code)}
		}
		p := doc.Paths[rt.path]
		p.set(rt.method, op)
		doc.Paths[rt.path] = p
	}
	return doc
}
