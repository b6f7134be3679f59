// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openapi3 "github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/tchandler/eventworks/internal/server/events"
	"github.com/tchandler/eventworks/pkg/eventworks"
)

// serveOpenAPI returns an OpenAPI v3 JSON document generated from server types.
func (api *apiServer) serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	baseURL := ""
	if r != nil && r.Host != "" {
		scheme := "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	spec, err := BuildOpenAPISpec(baseURL)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to build openapi: %v", err), http.StatusInternalServerError)
		return
	}
	data, err := json.Marshal(spec)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal openapi: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type channelListResponse struct {
	Channels []eventworks.ChannelStats `json:"channels"`
}

// BuildOpenAPISpec constructs the OpenAPI spec. If baseURL is non-empty, it will be set as the server URL.
func BuildOpenAPISpec(baseURL string) (*openapi3.T, error) {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "Eventworks REST API",
			Version:     "v1",
			Description: "Publish to and observe channels and topics of an eventworks registry.",
		},
		Servers:    openapi3.Servers{},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: openapi3.Schemas{}},
	}
	if baseURL != "" {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: baseURL})
	}

	gen := openapi3gen.NewGenerator(
		openapi3gen.CreateComponentSchemas(openapi3gen.ExportComponentSchemasOptions{
			ExportComponentSchemas: true,
			ExportTopLevelSchema:   false,
			ExportGenerics:         true,
		}),
	)

	envelopeRef, err := gen.NewSchemaRefForValue(&events.Envelope{}, spec.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("envelope schema: %w", err)
	}
	channelsRef, err := gen.NewSchemaRefForValue(&channelListResponse{}, spec.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("channel list schema: %w", err)
	}
	historyRef, err := gen.NewSchemaRefForValue(&HistoryResponse{}, spec.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("history schema: %w", err)
	}

	errorSchema := openapi3.NewSchemaRef("", &openapi3.Schema{
		Type: &openapi3.Types{openapi3.TypeObject},
		Properties: map[string]*openapi3.SchemaRef{
			"error": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		},
	})
	spec.Components.Schemas["Error"] = errorSchema

	errorResponse := func(op *openapi3.Operation, status, description string) {
		resp := openapi3.NewResponse().WithDescription(description)
		resp.Content = openapi3.NewContentWithJSONSchemaRef(errorSchema)
		op.Responses.Set(status, &openapi3.ResponseRef{Value: resp})
	}

	channelParam := &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        "channel",
		In:          openapi3.ParameterInPath,
		Required:    true,
		Description: `Channel name; "-" selects the default channel.`,
		Schema:      openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}}
	topicParam := &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:     "topic",
		In:       openapi3.ParameterInPath,
		Required: true,
		Schema:   openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}}
	limitParam := &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:   "limit",
		In:     openapi3.ParameterInQuery,
		Schema: openapi3.NewSchemaRef("", openapi3.NewIntegerSchema().WithMin(0)),
	}}

	// /healthz
	spec.AddOperation("/healthz", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Health check"
		op.OperationID = "getHealth"
		op.Tags = []string{"health"}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Service is healthy")
			schema := openapi3.NewObjectSchema()
			schema.Properties = map[string]*openapi3.SchemaRef{
				"status": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			}
			resp.Content = openapi3.NewContentWithJSONSchema(schema)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		return op
	}())

	spec.AddOperation("/api/v1/channels", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "List channels and their topics"
		op.OperationID = "listChannels"
		op.Tags = []string{"channels"}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Registry snapshot")
			resp.Content = openapi3.NewContentWithJSONSchemaRef(channelsRef)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		return op
	}())

	spec.AddOperation("/api/v1/channels/{channel}/subscriptions", http.MethodDelete, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Remove every subscription on a channel"
		op.OperationID = "clearChannel"
		op.Tags = []string{"channels"}
		op.Parameters = openapi3.Parameters{channelParam}
		op.Responses = openapi3.NewResponses()
		op.Responses.Set("204", &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("Cleared")})
		return op
	}())

	spec.AddOperation("/api/v1/channels/{channel}/topics/{topic}/events", http.MethodPost, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Publish an event"
		op.Description = "Any JSON document is accepted as the payload; an empty body publishes no payload."
		op.OperationID = "publishEvent"
		op.Tags = []string{"events"}
		op.Parameters = openapi3.Parameters{channelParam, topicParam}
		op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
			Content: openapi3.NewContentWithJSONSchema(openapi3.NewSchema()),
		}}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Accepted for dispatch")
			resp.Content = openapi3.NewContentWithJSONSchemaRef(envelopeRef)
			op.Responses.Set("202", &openapi3.ResponseRef{Value: resp})
		}
		errorResponse(op, "400", "Invalid payload")
		errorResponse(op, "413", "Payload too large")
		errorResponse(op, "503", "Registry closed")
		errorResponse(op, "500", "Internal error")
		return op
	}())

	spec.AddOperation("/api/v1/channels/{channel}/topics/{topic}/events", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Stream topic events (SSE)"
		op.OperationID = "streamEvents"
		op.Tags = []string{"events"}
		op.Parameters = openapi3.Parameters{channelParam, topicParam}
		op.Responses = openapi3.NewResponses()
		{
			desc := "SSE stream of event envelopes"
			resp := &openapi3.Response{Description: &desc, Content: openapi3.Content{"text/event-stream": {Schema: envelopeRef}}}
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		errorResponse(op, "500", "Internal error")
		return op
	}())

	spec.AddOperation("/api/v1/channels/{channel}/topics/{topic}/history", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "List recently published events"
		op.OperationID = "listHistory"
		op.Tags = []string{"events"}
		op.Parameters = openapi3.Parameters{channelParam, topicParam, limitParam}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Journal entries, oldest first")
			resp.Content = openapi3.NewContentWithJSONSchemaRef(historyRef)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		errorResponse(op, "400", "Invalid limit")
		errorResponse(op, "503", "Journal not available")
		return op
	}())

	spec.AddOperation("/api/v1/channels/{channel}/topics/{topic}/subscriptions", http.MethodDelete, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Remove every subscription on a topic"
		op.OperationID = "clearTopic"
		op.Tags = []string{"channels"}
		op.Parameters = openapi3.Parameters{channelParam, topicParam}
		op.Responses = openapi3.NewResponses()
		op.Responses.Set("204", &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("Cleared")})
		return op
	}())

	spec.AddOperation("/ws/v1/channels/{channel}/topics/{topic}", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Stream topic events over WebSocket"
		op.Description = "Upgrades to a WebSocket carrying one JSON event envelope per text message."
		op.OperationID = "websocketEvents"
		op.Tags = []string{"events"}
		op.Parameters = openapi3.Parameters{channelParam, topicParam}
		op.Responses = openapi3.NewResponses()
		op.Responses.Set("101", &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("Switching protocols")})
		return op
	}())

	return spec, nil
}

// ValidateOpenAPISpec checks the document as clients see it. The generator
// leaves component refs unresolved in memory, so the document is serialised
// and loaded back before validation.
func ValidateOpenAPISpec(ctx context.Context, spec *openapi3.T) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal openapi: %w", err)
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return fmt.Errorf("load openapi: %w", err)
	}
	return doc.Validate(ctx)
}
