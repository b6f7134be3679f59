package openapiutil

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Operation describes a single OpenAPI operation with resolved metadata.
type Operation struct {
	OperationID string
	Method      string
	Path        string
	Summary     string
	Tags        []string
	Parameters  []Parameter
}

// Parameter captures relevant parameter metadata from the spec.
type Parameter struct {
	Name        string
	In          string
	Required    bool
	Description string
}

// ParseDocument loads and validates an OpenAPI document from raw bytes.
func ParseDocument(ctx context.Context, data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: load: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: validate: %w", err)
	}
	return doc, nil
}

// ListOperations flattens all operations in the document, ordered by path
// then method.
func ListOperations(doc *openapi3.T) []Operation {
	var ops []Operation
	if doc == nil || doc.Paths == nil {
		return ops
	}

	for path, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		pathParams := collectParameters(item.Parameters)
		for method, op := range item.Operations() {
			if op == nil {
				continue
			}
			ops = append(ops, Operation{
				OperationID: op.OperationID,
				Method:      strings.ToUpper(method),
				Path:        path,
				Summary:     op.Summary,
				Tags:        op.Tags,
				Parameters:  append(collectParameters(op.Parameters), pathParams...),
			})
		}
	}

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return methodRank(ops[i].Method) < methodRank(ops[j].Method)
	})
	return ops
}

// FindOperation locates an operation by operationId (case insensitive) or a
// "METHOD:PATH" token.
func FindOperation(doc *openapi3.T, token string) (*Operation, error) {
	ops := ListOperations(doc)
	normalized := strings.ToLower(strings.TrimSpace(token))
	for i := range ops {
		if ops[i].OperationID != "" && strings.ToLower(ops[i].OperationID) == normalized {
			return &ops[i], nil
		}
	}

	if method, path, ok := strings.Cut(strings.TrimSpace(token), ":"); ok {
		method = strings.ToUpper(strings.TrimSpace(method))
		path = strings.TrimSpace(path)
		for i := range ops {
			if ops[i].Method == method && strings.EqualFold(ops[i].Path, path) {
				return &ops[i], nil
			}
		}
	}

	return nil, fmt.Errorf("operation %q not found", token)
}

// RequiredParameters returns the names of required parameters filtered by location.
func RequiredParameters(op *Operation, location string) []string {
	if op == nil {
		return nil
	}
	var result []string
	for _, param := range op.Parameters {
		if strings.EqualFold(param.In, location) && param.Required {
			result = append(result, param.Name)
		}
	}
	return result
}

func methodRank(method string) int {
	switch method {
	case http.MethodGet:
		return 0
	case http.MethodPost:
		return 1
	case http.MethodPut:
		return 2
	case http.MethodPatch:
		return 3
	case http.MethodDelete:
		return 4
	}
	return 5
}

func collectParameters(refs openapi3.Parameters) []Parameter {
	params := make([]Parameter, 0, len(refs))
	for _, ref := range refs {
		if ref == nil || ref.Value == nil {
			continue
		}
		param := ref.Value
		params = append(params, Parameter{
			Name:        param.Name,
			In:          param.In,
			Required:    param.Required,
			Description: param.Description,
		})
	}
	return params
}
