// Package server exposes the requirement workflow over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"reqline/internal/app"
	"reqline/internal/config"
	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/permission"
	"reqline/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"cannot approve requirement in state proposed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Reqline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Store))
	hcfg := huma.DefaultConfig("Reqline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSolutions(group, cfg.Engine)
	registerRequirements(group, cfg.Engine)
	registerReview(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var denied permission.DeniedError
	if errors.As(err, &denied) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": denied.Role})
	}
	var notFound engine.NotFoundError
	if errors.As(err, &notFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var mismatch engine.MismatchError
	if errors.As(err, &mismatch) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	var invalid engine.InvalidWorkflowStateError
	if errors.As(err, &invalid) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_state", err.Error(), map[string]any{"state": invalid.State})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "invalid_state"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Reqline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSolutions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-solution",
		Method:        http.MethodPost,
		Path:          "/solutions",
		Summary:       "Create solution",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateSolutionRequest `json:"body"`
	}) (*struct {
		Body SolutionResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.Store.GetSolution(ctx, input.Body.ID); err == nil {
			return nil, newAPIError(http.StatusConflict, "conflict", "solution already exists", nil)
		}
		seedCfg := config.Default(input.Body.ID)
		if input.Body.OrgID != "" {
			seedCfg.Organization.ID = input.Body.OrgID
			seedCfg.Organization.Name = input.Body.OrgID
		}
		if input.Body.Name != "" {
			seedCfg.Solution.Name = input.Body.Name
		}
		if err := app.CreateSolution(ctx, e.Store, input.Body.ID, seedCfg, actorID); err != nil {
			return nil, handleError(err)
		}
		sol, err := e.Store.GetSolution(ctx, input.Body.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SolutionResponse `json:"body"`
		}{Body: solutionResponse(sol)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-solutions",
		Method:      http.MethodGet,
		Path:        "/solutions",
		Summary:     "List solutions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []SolutionResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Store.ListSolutions(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SolutionResponse `json:"body"`
		}{Body: mapSolutions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-solution",
		Method:      http.MethodGet,
		Path:        "/solutions/{solution_id}",
		Summary:     "Get solution",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SolutionID string `path:"solution_id"`
	}) (*struct {
		Body SolutionResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		sol, err := e.Store.GetSolution(ctx, input.SolutionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SolutionResponse `json:"body"`
		}{Body: solutionResponse(sol)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "solution-status",
		Method:      http.MethodGet,
		Path:        "/solutions/{solution_id}/status",
		Summary:     "Solution status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SolutionID string `path:"solution_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		sol, err := e.Store.GetSolution(ctx, input.SolutionID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Store.CountRequirementsByState(ctx, sol.ID)
		if err != nil {
			return nil, handleError(err)
		}
		missing, err := e.MissingMinimumRequirements(ctx, sol.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"solution_id":     sol.ID,
			"state_counts":    counts,
			"missing_minimum": missing,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "has-active-requirements",
		Method:      http.MethodGet,
		Path:        "/solutions/{solution_id}/requirements/active",
		Summary:     "Whether the solution has active requirements of a type",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SolutionID string `path:"solution_id"`
		ReqType    string `query:"type"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		sol, err := e.Store.GetSolution(ctx, input.SolutionID)
		if err != nil {
			return nil, handleError(err)
		}
		active, err := e.HasActiveRequirements(ctx, sol.ID, input.ReqType)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"solution_id": sol.ID,
			"type":        input.ReqType,
			"active":      active,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-solution-config",
		Method:      http.MethodGet,
		Path:        "/solutions/{solution_id}/config",
		Summary:     "Get solution config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SolutionID string `path:"solution_id"`
	}) (*struct {
		Body *config.Config `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Store.GetSolutionConfig(ctx, input.SolutionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *config.Config `json:"body"`
		}{Body: cfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-solution-config",
		Method:      http.MethodPut,
		Path:        "/solutions/{solution_id}/config",
		Summary:     "Replace solution config",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SolutionID string        `path:"solution_id"`
		Body       config.Config `json:"body"`
	}) (*struct {
		Body *config.Config `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sol, err := e.Store.GetSolution(ctx, input.SolutionID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Gate.AssertOrganizationAdmin(ctx, sol.OrgID, actorID); err != nil {
			return nil, handleError(err)
		}
		cfg := input.Body
		if err := e.Store.UpsertSolutionConfig(ctx, sol.ID, &cfg); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *config.Config `json:"body"`
		}{Body: &cfg}, nil
	})
}

func registerRequirements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "propose-requirement",
		Method:        http.MethodPost,
		Path:          "/solutions/{solution_id}/requirements",
		Summary:       "Propose requirement",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		SolutionID string                    `path:"solution_id"`
		Body       ProposeRequirementRequest `json:"body"`
	}) (*struct {
		Body RequirementResponse `json:"body"`
	}, error) {
		if input.Body.Type == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.ProposeRequirement(ctx, actorID, input.SolutionID, input.Body.Type, input.Body.Props)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequirementResponse `json:"body"`
		}{Body: requirementResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requirements",
		Method:      http.MethodGet,
		Path:        "/solutions/{solution_id}/requirements",
		Summary:     "List requirements",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SolutionID string `path:"solution_id"`
		Type       string `query:"type"`
	}) (*struct {
		Body []RequirementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListRequirements(ctx, actorID, input.SolutionID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RequirementResponse `json:"body"`
		}{Body: mapRequirements(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-requirement",
		Method:      http.MethodGet,
		Path:        "/requirements/{requirement_id}",
		Summary:     "Get requirement",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
	}) (*struct {
		Body RequirementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.GetRequirement(ctx, actorID, input.RequirementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequirementResponse `json:"body"`
		}{Body: requirementResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-requirement",
		Method:      http.MethodPatch,
		Path:        "/requirements/{requirement_id}",
		Summary:     "Update proposed requirement",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		RequirementID string                   `path:"requirement_id"`
		Body          UpdateRequirementRequest `json:"body"`
	}) (*struct {
		Body RequirementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.UpdateProposedRequirement(ctx, actorID, input.RequirementID, input.Body.Props)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequirementResponse `json:"body"`
		}{Body: requirementResponse(req)}, nil
	})

	transition := func(opID, pathSuffix, summary string, fn func(ctx context.Context, actorID, id string, body EndorseRequest) (domain.Requirement, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/requirements/{requirement_id}/" + pathSuffix,
			Summary:     summary,
			Errors: []int{
				http.StatusForbidden,
				http.StatusNotFound,
				http.StatusConflict,
				http.StatusUnprocessableEntity,
			},
		}, func(ctx context.Context, input *struct {
			RequirementID string        `path:"requirement_id"`
			Body          EndorseRequest `json:"body,omitempty"`
		}) (*struct {
			Body RequirementResponse `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			req, err := fn(ctx, actorID, input.RequirementID, input.Body)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body RequirementResponse `json:"body"`
			}{Body: requirementResponse(req)}, nil
		})
	}

	transition("review-requirement", "review", "Submit requirement for review",
		func(ctx context.Context, actorID, id string, _ EndorseRequest) (domain.Requirement, error) {
			return e.ReviewRequirement(ctx, actorID, id)
		})
	transition("approve-requirement", "approve", "Approve reviewed requirement",
		func(ctx context.Context, actorID, id string, _ EndorseRequest) (domain.Requirement, error) {
			return e.ApproveRequirement(ctx, actorID, id)
		})
	transition("reject-requirement", "reject", "Reject reviewed requirement",
		func(ctx context.Context, actorID, id string, body EndorseRequest) (domain.Requirement, error) {
			return e.RejectRequirement(ctx, actorID, id, body.Comments)
		})
	transition("restore-requirement", "restore", "Restore removed requirement",
		func(ctx context.Context, actorID, id string, _ EndorseRequest) (domain.Requirement, error) {
			return e.RestoreRemovedRequirement(ctx, actorID, id)
		})

	huma.Register(api, huma.Operation{
		OperationID: "revise-requirement",
		Method:      http.MethodPost,
		Path:        "/requirements/{requirement_id}/revise",
		Summary:     "Revise rejected requirement",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequirementID string                   `path:"requirement_id"`
		Body          UpdateRequirementRequest `json:"body,omitempty"`
	}) (*struct {
		Body RequirementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.ReviseRejectedRequirement(ctx, actorID, input.RequirementID, input.Body.Props)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequirementResponse `json:"body"`
		}{Body: requirementResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-requirement",
		Method:      http.MethodPost,
		Path:        "/requirements/{requirement_id}/edit",
		Summary:     "Open a new draft version of an active requirement",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequirementID string                   `path:"requirement_id"`
		Body          UpdateRequirementRequest `json:"body"`
	}) (*struct {
		Body RequirementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.EditActiveRequirement(ctx, actorID, input.RequirementID, input.Body.Props)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequirementResponse `json:"body"`
		}{Body: requirementResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-requirement",
		Method:      http.MethodDelete,
		Path:        "/requirements/{requirement_id}",
		Summary:     "Remove requirement",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
	}) (*struct {
		Body RequirementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		current, err := e.GetRequirement(ctx, actorID, input.RequirementID)
		if err != nil {
			return nil, handleError(err)
		}
		var req domain.Requirement
		switch current.State {
		case domain.StateProposed:
			req, err = e.RemoveProposedRequirement(ctx, actorID, input.RequirementID)
		case domain.StateRejected:
			req, err = e.RemoveRejectedRequirement(ctx, actorID, input.RequirementID)
		case domain.StateActive:
			req, err = e.RemoveActiveRequirement(ctx, actorID, input.RequirementID)
		default:
			err = engine.InvalidWorkflowStateError{RequirementID: input.RequirementID, State: current.State, Op: "remove"}
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequirementResponse `json:"body"`
		}{Body: requirementResponse(req)}, nil
	})
}

func registerReview(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-endorsements",
		Method:      http.MethodGet,
		Path:        "/requirements/{requirement_id}/endorsements",
		Summary:     "List endorsements of the latest version",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
	}) (*struct {
		Body []EndorsementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.GetRequirement(ctx, actorID, input.RequirementID)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Store.ListEndorsements(ctx, req.ID, req.Version)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EndorsementResponse `json:"body"`
		}{Body: mapEndorsements(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "endorse-requirement",
		Method:      http.MethodPost,
		Path:        "/requirements/{requirement_id}/endorsements",
		Summary:     "Resolve the caller's pending endorsement",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
		Body          struct {
			Decision string `json:"decision" enum:"approve,reject"`
			Comments string `json:"comments,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body RequirementResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var req domain.Requirement
		var err error
		switch input.Body.Decision {
		case "approve":
			req, err = e.EndorseRequirement(ctx, actorID, input.RequirementID, input.Body.Comments)
		case "reject":
			req, err = e.RejectEndorsement(ctx, actorID, input.RequirementID, input.Body.Comments)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "decision must be approve or reject", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequirementResponse `json:"body"`
		}{Body: requirementResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-state",
		Method:      http.MethodGet,
		Path:        "/requirements/{requirement_id}/review",
		Summary:     "Review checklist for the latest version",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
	}) (*struct {
		Body domain.ReviewState `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		state, err := e.GetReviewState(ctx, actorID, input.RequirementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReviewState `json:"body"`
		}{Body: state}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retry-check",
		Method:      http.MethodPost,
		Path:        "/requirements/{requirement_id}/checks/{check_type}/retry",
		Summary:     "Retry an automated check",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		RequirementID string `path:"requirement_id"`
		CheckType     string `path:"check_type"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RetryAutomatedCheck(ctx, actorID, input.RequirementID, input.CheckType); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "dispatched"}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/solutions/{solution_id}/events",
		Summary:     "Latest events",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SolutionID string `path:"solution_id"`
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
		Type       string `query:"type"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		items, err := e.Store.LatestEventsFrom(ctx, limit, input.Cursor, input.SolutionID, input.Type, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	requireAdmin := func(ctx context.Context, actorID string) error {
		orgID := "default-org"
		if e.Config != nil && e.Config.Organization.ID != "" {
			orgID = e.Config.Organization.ID
		}
		return e.Gate.AssertOrganizationAdmin(ctx, orgID, actorID)
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.AppUserID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "app_user_id is required", nil)
		}
		if err := requireAdmin(ctx, actorID); err != nil {
			return nil, handleError(err)
		}
		rawKey := uuid.NewString() + uuid.NewString()
		key := domain.APIKey{
			ID:        uuid.NewString(),
			AppUserID: input.Body.AppUserID,
			Name:      input.Body.Name,
			KeyHash:   store.HashAPIKey(rawKey),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Store.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			AppUserID: key.AppUserID,
			Name:      key.Name,
			Key:       rawKey,
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		AppUserID string `query:"app_user_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireAdmin(ctx, actorID); err != nil {
			return nil, handleError(err)
		}
		keys, err := e.Store.ListAPIKeys(ctx, input.AppUserID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, APIKeyResponse{ID: k.ID, AppUserID: k.AppUserID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireAdmin(ctx, actorID); err != nil {
			return nil, handleError(err)
		}
		if err := e.Store.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Authenticated caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"user_id": p.UserID, "source": p.Source}}, nil
	})
}
