package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boypt/dlbridge/bridge"
	"github.com/boypt/dlbridge/core"
)

const (
	apiPrefix  = "/api/"
	maxAPIBody = 1 << 20
)

type apiResult struct {
	Result interface{} `json:"result"`
}

// restAPIhandle maps POST /api/<method> with a JSON object body onto one
// method call.
func (s *Server) restAPIhandle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	method := strings.TrimPrefix(r.URL.Path, apiPrefix)

	switch r.Method {
	case "POST":
	case "GET":
		if method == "" {
			writeJSON(w, http.StatusOK, bridge.Methods())
			return
		}
		fallthrough
	default:
		writeJSON(w, http.StatusMethodNotAllowed, &bridge.MethodError{
			Code:    string(core.CodeBadArgs),
			Message: fmt.Sprintf("%s %s: Method Not Allowed", r.Method, r.URL.Path),
		})
		return
	}

	args, err := decodeArgs(http.MaxBytesReader(w, r.Body, maxAPIBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &bridge.MethodError{
			Code:    string(core.CodeBadArgs),
			Message: err.Error(),
		})
		return
	}

	result, err := s.plugin.Invoke(method, args)
	if err != nil {
		var me *bridge.MethodError
		if !errors.As(err, &me) {
			me = &bridge.MethodError{Code: string(core.CodeEngineError), Message: err.Error()}
		}
		writeJSON(w, http.StatusBadRequest, me)
		return
	}
	writeJSON(w, http.StatusOK, apiResult{Result: result})
}

// decodeArgs reads an optional JSON object. Numbers stay json.Number so
// integral arguments keep their exact value.
func decodeArgs(body io.Reader) (bridge.Args, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var args bridge.Args
	if err := dec.Decode(&args); err != nil {
		if errors.Is(err, io.EOF) {
			return bridge.Args{}, nil
		}
		return nil, fmt.Errorf("Malformed arguments: %s", err)
	}
	if args == nil {
		args = bridge.Args{}
	}
	return args, nil
}
