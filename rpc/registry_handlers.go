package rpc

import (
	"errors"
	"net/http"

	"gridchain/native/registry"
)

const (
	codeRegistryInvalidParams = -32031
	codeRegistryNotFound      = -32032
	codeRegistryConflict      = -32033
	codeRegistryInternal      = -32034
)

var registryCodes = moduleCodes{
	invalidParams: codeRegistryInvalidParams,
	notFound:      codeRegistryNotFound,
	forbidden:     codeRegistryConflict,
	conflict:      codeRegistryConflict,
	internal:      codeRegistryInternal,
	classifyFn:    classifyRegistryError,
}

func classifyRegistryError(err error) (string, int) {
	switch {
	case errors.Is(err, registry.ErrNotRegistered):
		return "not_found", slotNotFound
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return "conflict", slotConflict
	case errors.Is(err, registry.ErrInvalidRole):
		return "invalid_params", slotInvalidParams
	default:
		return "internal", slotInternal
	}
}

type registryParams struct {
	Address string `json:"address"`
	Role    string `json:"role"`
}

func (s *Server) handleRegistryRegister(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params registryParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	role, err := registry.ParseRole(params.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, err := s.node.RegisterParticipant(addr, role)
	if err != nil {
		s.writeModuleError(w, req.ID, err, registryCodes)
		return
	}
	writeResult(w, req.ID, newParticipantJSON(participant))
}

func (s *Server) handleRegistryUpdateRole(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params registryParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	role, err := registry.ParseRole(params.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, err := s.node.UpdateParticipantRole(addr, role)
	if err != nil {
		s.writeModuleError(w, req.ID, err, registryCodes)
		return
	}
	writeResult(w, req.ID, newParticipantJSON(participant))
}

func (s *Server) handleRegistryGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, ok, err := s.node.GetParticipant(addr)
	if err != nil {
		s.writeModuleError(w, req.ID, err, registryCodes)
		return
	}
	if !ok {
		s.writeModuleError(w, req.ID, registry.ErrNotRegistered, registryCodes)
		return
	}
	writeResult(w, req.ID, newParticipantJSON(participant))
}
