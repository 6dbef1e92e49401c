package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"gridchain/native/meter"
)

const (
	codeMeterInvalidParams = -32051
	codeMeterNotFound      = -32052
	codeMeterForbidden     = -32053
	codeMeterConflict      = -32054
	codeMeterInternal      = -32055
)

var meterCodes = moduleCodes{
	invalidParams:     codeMeterInvalidParams,
	notFound:          codeMeterNotFound,
	forbidden:         codeMeterForbidden,
	conflict:          codeMeterConflict,
	insufficientFunds: codeMeterInternal,
	internal:          codeMeterInternal,
	classifyFn:        classifyMeterError,
}

func classifyMeterError(err error) (string, int) {
	switch {
	case errors.Is(err, meter.ErrInvalidReading):
		return "invalid_params", slotInvalidParams
	case errors.Is(err, meter.ErrReadingNotFound):
		return "not_found", slotNotFound
	case errors.Is(err, meter.ErrSelfVerification):
		return "forbidden", slotForbidden
	case errors.Is(err, meter.ErrReadingConflict),
		errors.Is(err, meter.ErrAlreadyVerified):
		return "conflict", slotConflict
	default:
		return "internal", slotInternal
	}
}

func parseReadingKind(s string) (meter.ReadingKind, error) {
	switch s {
	case "generation":
		return meter.KindGeneration, nil
	case "consumption":
		return meter.KindConsumption, nil
	default:
		return 0, fmt.Errorf("unknown reading kind %q", s)
	}
}

type submitReadingParams struct {
	Meter     string `json:"meter"`
	Kind      string `json:"kind"`
	EnergyWh  uint64 `json:"energyWh"`
	Sequence  uint64 `json:"sequence"`
	Signature string `json:"signature"`
}

func (s *Server) handleMeterSubmitReading(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params submitReadingParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	meterAddr, err := parseAddress(params.Meter)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	kind, err := parseReadingKind(params.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	var signature []byte
	if params.Signature != "" {
		signature, err = hex.DecodeString(params.Signature)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", "signature must be hex encoded")
			return
		}
	}
	reading, err := s.node.SubmitMeterReading(meterAddr, kind, params.EnergyWh, params.Sequence, signature)
	if err != nil {
		s.writeModuleError(w, req.ID, err, meterCodes)
		return
	}
	writeResult(w, req.ID, newReadingJSON(reading))
}

type readingIDParams struct {
	ID string `json:"id"`
}

func (s *Server) handleMeterGetReading(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params readingIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	reading, ok, err := s.node.GetMeterReading(id)
	if err != nil {
		s.writeModuleError(w, req.ID, err, meterCodes)
		return
	}
	if !ok {
		s.writeModuleError(w, req.ID, meter.ErrReadingNotFound, meterCodes)
		return
	}
	writeResult(w, req.ID, newReadingJSON(reading))
}

type verifyReadingParams struct {
	ID       string `json:"id"`
	Verifier string `json:"verifier"`
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

func (s *Server) handleMeterVerifyReading(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params verifyReadingParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	verifier, err := parseAddress(params.Verifier)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	verification, err := s.node.VerifyMeterReading(id, verifier, params.Approved, params.Notes)
	if err != nil {
		s.writeModuleError(w, req.ID, err, meterCodes)
		return
	}
	writeResult(w, req.ID, newVerificationJSON(verification))
}

func (s *Server) handleMeterTotals(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMeterInvalidParams, "invalid_params", err.Error())
		return
	}
	totals, err := s.node.GetMeterTotals(addr)
	if err != nil {
		s.writeModuleError(w, req.ID, err, meterCodes)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"meter":         formatAddress(totals.Meter),
		"generationWh":  totals.GenerationWh,
		"consumptionWh": totals.ConsumptionWh,
	})
}
