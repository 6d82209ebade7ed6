package service

// OpenAPIDocument is the OpenAPI 3.0 description served at /api/v1/openapi.json.
type OpenAPIDocument struct {
	OpenAPI string              `json:"openapi"`
	Info    InfoSpec            `json:"info"`
	Paths   map[string]PathSpec `json:"paths"`
	Tags    []TagSpec           `json:"tags,omitempty"`
}

// PathSpec defines HTTP operations for a specific path
type PathSpec struct {
	GET    *OperationSpec `json:"get,omitempty"`
	POST   *OperationSpec `json:"post,omitempty"`
	PUT    *OperationSpec `json:"put,omitempty"`
	DELETE *OperationSpec `json:"delete,omitempty"`
}

// OperationSpec defines a single HTTP operation
type OperationSpec struct {
	Summary    string                  `json:"summary"`
	Parameters []ParameterSpec         `json:"parameters,omitempty"`
	Responses  map[string]ResponseSpec `json:"responses"`
	Tags       []string                `json:"tags,omitempty"`
}

// ParameterSpec defines an operation parameter
type ParameterSpec struct {
	Name     string `json:"name"`
	In       string `json:"in"` // "query", "path"
	Required bool   `json:"required,omitempty"`
	Schema   Schema `json:"schema"`
}

// ResponseSpec defines an operation response
type ResponseSpec struct {
	Description string `json:"description"`
}

// Schema defines parameter or response schema
type Schema struct {
	Type string `json:"type"`
}

// InfoSpec contains API metadata
type InfoSpec struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// TagSpec defines an API tag for grouping operations
type TagSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (p *PathSpec) set(method string, op *OperationSpec) {
	switch method {
	case "GET":
		p.GET = op
	case "POST":
		p.POST = op
	case "PUT":
		p.PUT = op
	case "DELETE":
		p.DELETE = op
	}
}
