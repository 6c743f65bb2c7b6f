package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	errs "crowdsale/core/errors"
)

var errBadRequest = errors.New("malformed request")

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Code  string `json:"code"`
}

func toStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	if errors.Is(err, errBadRequest) {
		return status.New(codes.InvalidArgument, err.Error())
	}
	switch errs.KindOf(err) {
	case errs.ErrAuthorization:
		return status.New(codes.PermissionDenied, err.Error())
	case errs.ErrPhase, errs.ErrTimelock:
		return status.New(codes.FailedPrecondition, err.Error())
	case errs.ErrValidation:
		return status.New(codes.InvalidArgument, err.Error())
	case errs.ErrInsufficientFunds:
		return status.New(codes.ResourceExhausted, err.Error())
	default:
		return status.New(codes.Internal, "internal error")
	}
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusUnprocessableEntity
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	st := toStatus(err)
	kind := errs.KindName(err)
	if errors.Is(err, errBadRequest) {
		kind = "validation"
	}
	writeJSON(w, httpStatus(st.Code()), errorBody{Error: st.Message(), Kind: kind, Code: st.Code().String()})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
