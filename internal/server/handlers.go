// internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/markb/fhirsql/internal/dialect"
	"github.com/markb/fhirsql/internal/fhirpath"
	"github.com/markb/fhirsql/internal/sqlgen"
)

// CompileRequest is the body of POST /compile.
type CompileRequest struct {
	Expression string `json:"expression"`
	Resource   string `json:"resource"`
	Dialect    string `json:"dialect"`
}

// CompileResponse is the success reply of POST /compile.
type CompileResponse struct {
	SQL      string `json:"sql"`
	Resource string `json:"resource"`
	Dialect  string `json:"dialect"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Expression == "" {
		s.writeError(w, http.StatusBadRequest, "validation_failed", "expression is required")
		return
	}
	if req.Resource == "" {
		s.writeError(w, http.StatusBadRequest, "validation_failed", "resource is required")
		return
	}
	if req.Dialect == "" {
		req.Dialect = "postgres"
	}

	d, err := dialect.Parse(req.Dialect)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown_dialect", err.Error())
		return
	}
	if !s.registry.IsResource(req.Resource) {
		s.writeError(w, http.StatusBadRequest, "unknown_resource", "not a known resource type: "+req.Resource)
		return
	}

	query, err := sqlgen.Compile(req.Expression, req.Resource, d)
	if err != nil {
		s.writeCompileError(w, err)
		return
	}

	json.NewEncoder(w).Encode(CompileResponse{
		SQL:      query,
		Resource: req.Resource,
		Dialect:  d.Name(),
	})
}

// writeCompileError maps compiler errors onto stable error codes.
func (s *Server) writeCompileError(w http.ResponseWriter, err error) {
	var parseErr *fhirpath.ParseError
	if errors.As(err, &parseErr) {
		s.writeError(w, http.StatusBadRequest, "parse_error", parseErr.Error())
		return
	}

	var transErr *sqlgen.TranslationError
	if errors.As(err, &transErr) {
		code := "translation_error"
		switch transErr.Kind {
		case sqlgen.ErrUnsupportedExpression:
			code = "unsupported_expression"
		case sqlgen.ErrUnboundVariable:
			code = "unbound_variable"
		case sqlgen.ErrInvalidLiteral:
			code = "invalid_literal"
		case sqlgen.ErrRecursionLimitExceeded:
			code = "recursion_limit_exceeded"
		}
		s.writeError(w, http.StatusUnprocessableEntity, code, transErr.Error())
		return
	}

	s.writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func (s *Server) handleDialects(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string][]string{
		"dialects": {"postgres", "sqlite"},
	})
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	names := s.registry.TypeNames()
	sort.Strings(names)
	json.NewEncoder(w).Encode(map[string][]string{"types": names})
}

// TypeElement is one element of a type listing.
type TypeElement struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Array  bool     `json:"array"`
	Choice []string `json:"choice,omitempty"`
}

// TypeResponse describes a registry type and its declared elements.
type TypeResponse struct {
	Name     string        `json:"name"`
	Family   string        `json:"family"`
	Parent   string        `json:"parent,omitempty"`
	Elements []TypeElement `json:"elements"`
}

func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	desc, ok := s.registry.Lookup(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown_type", "not a known type: "+name)
		return
	}

	resp := TypeResponse{
		Name:   desc.Name,
		Family: desc.Family.String(),
		Parent: desc.Parent,
	}
	elems := s.registry.Elements(desc.Name)
	resp.Elements = make([]TypeElement, 0, len(elems))
	for field, info := range elems {
		resp.Elements = append(resp.Elements, TypeElement{
			Name:   field,
			Type:   info.Type,
			Array:  info.Array,
			Choice: info.Choice,
		})
	}
	sort.Slice(resp.Elements, func(i, j int) bool {
		return resp.Elements[i].Name < resp.Elements[j].Name
	})

	json.NewEncoder(w).Encode(resp)
}
