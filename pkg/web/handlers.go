// Package web provides the HTTP handlers of the query approval API.
package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/querygate/pkg/auth"
	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/scripts"
	"github.com/dukex/querygate/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// ScriptUploader stores an uploaded script and returns its reference.
type ScriptUploader interface {
	Save(filename string, content []byte) (string, error)
}

// InstanceLister exposes the connection registry.
type InstanceLister interface {
	List() []models.ConnectionDescriptor
	HealthCheck() (string, bool)
}

// LocalArtifacts maps a stored artifact URL to a local file, for stores
// whose URLs a browser cannot follow.
type LocalArtifacts interface {
	Path(objectURL string) (string, error)
}

type APIHandlers struct {
	requests  *services.Request
	artifacts *services.Artifact
	scripts   ScriptUploader
	instances InstanceLister
	validator *validator.Validate
	local     LocalArtifacts
}

type HandlerOption func(*APIHandlers)

// WithLocalArtifacts streams file:// artifacts instead of redirecting to them.
func WithLocalArtifacts(local LocalArtifacts) HandlerOption {
	return func(h *APIHandlers) {
		h.local = local
	}
}

func NewAPIHandlers(
	requests *services.Request,
	artifacts *services.Artifact,
	scripts ScriptUploader,
	instances InstanceLister,
	validator *validator.Validate,
	opts ...HandlerOption,
) *APIHandlers {
	h := &APIHandlers{
		requests:  requests,
		artifacts: artifacts,
		scripts:   scripts,
		instances: instances,
		validator: validator,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *APIHandlers) CreateRequest(c fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req SubmitQueryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, result, err := h.requests.Submit(c.Context(), actor, services.SubmitRequest{
		DatabaseKind:   req.DatabaseKind,
		InstanceName:   req.InstanceName,
		DatabaseName:   req.DatabaseName,
		SubmissionKind: models.SubmissionKindQuery,
		QueryContent:   req.QueryContent,
		Justification:  req.Justification,
		Team:           req.Team,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(RequestResponse{Request: created, Screen: result})
}

func (h *APIHandlers) CreateScriptRequest(c fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	form := SubmitScriptForm{
		DatabaseKind:  models.DatabaseKind(c.FormValue("database_kind")),
		InstanceName:  c.FormValue("instance_name"),
		DatabaseName:  c.FormValue("database_name"),
		Justification: c.FormValue("justification"),
		Team:          c.FormValue("team"),
	}

	if err := h.validator.Struct(form); err != nil {
		return badRequest(c, err.Error())
	}

	header, err := c.FormFile("script")
	if err != nil {
		return badRequest(c, "A script file is required in the 'script' field")
	}

	file, err := header.Open()
	if err != nil {
		return internalError(c, err)
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		return internalError(c, err)
	}

	ref, err := h.scripts.Save(header.Filename, content)
	if err != nil {
		if errors.Is(err, scripts.ErrInvalidExtension) ||
			errors.Is(err, scripts.ErrScriptTooLarge) ||
			errors.Is(err, scripts.ErrEmptyScript) {
			return badRequest(c, err.Error())
		}

		return internalError(c, err)
	}

	created, result, err := h.requests.Submit(c.Context(), actor, services.SubmitRequest{
		DatabaseKind:   form.DatabaseKind,
		InstanceName:   form.InstanceName,
		DatabaseName:   form.DatabaseName,
		SubmissionKind: models.SubmissionKindScript,
		ScriptPath:     ref,
		Justification:  form.Justification,
		Team:           form.Team,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(RequestResponse{Request: created, Screen: result})
}

func (h *APIHandlers) ListRequests(c fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	req, err := parseListRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	requests, err := h.requests.List(c.Context(), actor, *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"requests": requests,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

// parseListRequest parses the query parameters of ListRequests.
func parseListRequest(c fiber.Ctx) (*services.ListRequest, error) {
	req := &services.ListRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.RequestStatus(strings.ToUpper(statusStr))
		req.Status = &status
	}

	req.Team = c.Query("team")

	return req, nil
}

func (h *APIHandlers) GetRequest(c fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	request, err := h.requests.GetForActor(c.Context(), actor, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(RequestResponse{
		Request: request,
		Screen:  h.requests.ScreenRequest(c.Context(), request),
	})
}

func (h *APIHandlers) ApproveRequest(c fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	request, err := h.requests.Approve(c.Context(), c.Params("id"), actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) RejectRequest(c fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req RejectRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request, err := h.requests.Reject(c.Context(), c.Params("id"), actor, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) UpdateRequestStatus(c fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	var req UpdateStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request, err := h.requests.UpdateStatus(c.Context(), c.Params("id"), actor, req.Status, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	id := c.Params("id")

	if _, err := h.requests.GetForActor(c.Context(), actor, id); err != nil {
		return handleServiceError(c, err)
	}

	details, err := h.requests.GetExecution(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(details)
}

func (h *APIHandlers) DownloadArtifact(c fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}

	id := c.Params("id")

	if _, err := h.requests.GetForActor(c.Context(), actor, id); err != nil {
		return handleServiceError(c, err)
	}

	url, err := h.artifacts.Download(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if h.local != nil && strings.HasPrefix(url, "file://") {
		path, err := h.local.Path(url)
		if err != nil {
			return internalError(c, err)
		}

		c.Attachment(path)

		return c.SendFile(path)
	}

	return c.Redirect().Status(fiber.StatusFound).To(url)
}

func (h *APIHandlers) ScreenContent(c fiber.Ctx) error {
	var req ScreenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	submission := req.SubmissionKind
	if submission == "" {
		submission = models.SubmissionKindQuery
	}

	return c.JSON(h.requests.Screen(req.Content, req.DatabaseKind, submission))
}

func (h *APIHandlers) ListInstances(c fiber.Ctx) error {
	descriptors := h.instances.List()

	instances := make([]InstanceResponse, 0, len(descriptors))
	for _, d := range descriptors {
		instances = append(instances, InstanceResponse{Name: d.Name, Kind: d.Kind, Description: d.Description})
	}

	return c.JSON(fiber.Map{"instances": instances})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.instances.HealthCheck()
	repositoryCheck, repOk := h.requests.HealthCheck(c.Context())

	status := "unhealthy"
	message := "querygate API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "querygate API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Register mounts the request endpoints on router. Authentication is the caller's concern.
func (h *APIHandlers) Register(router fiber.Router) {
	r := router.Group("/requests")
	r.Get("/", h.ListRequests)
	r.Post("/", h.CreateRequest)
	r.Post("/script", h.CreateScriptRequest)
	r.Get("/:id", h.GetRequest)
	r.Post("/:id/approve", h.ApproveRequest)
	r.Post("/:id/reject", h.RejectRequest)
	r.Patch("/:id/status", h.UpdateRequestStatus)
	r.Get("/:id/execution", h.GetExecution)
	r.Get("/:id/execution/download", h.DownloadArtifact)

	router.Post("/screen", h.ScreenContent)
	router.Get("/instances", h.ListInstances)
}
