package server

import (
	"io"
	"net/http"

	"github.com/glossd/fetch"
	"github.com/glossd/unsealer/common"
	"github.com/glossd/unsealer/seal"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const UnsealedMessage = "Service unsealed and started."

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Sealed  bool   `json:"sealed"`
}

func (s *Server) Health(_ fetch.Empty) (*HealthResponse, error) {
	return &HealthResponse{
		Status:  "Ok",
		Version: common.Version,
		Sealed:  s.store.isSealed(),
	}, nil
}

type InitRequest struct {
	Config string `json:"config"`
}

func (s *Server) Init(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.BodyLimit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeText(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req, err := fetch.Unmarshal[InitRequest](string(body))
	if err != nil || req.Config == "" {
		writeText(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	status, msg := s.unseal(req.Config)
	logrus.WithFields(logrus.Fields{"remote": clientIP(r), "status": status}).Info("init: ", msg)
	writeText(w, status, msg)
}

func (s *Server) unseal(payload string) (int, string) {
	ok, err := s.store.unseal(func() (string, error) {
		return seal.Open(payload, s.cfg.ServerPrivateKey, s.cfg.ManagerPublicKey)
	})
	switch {
	case !ok:
		return http.StatusConflict, "Service already unsealed"
	case err == nil:
		return http.StatusOK, UnsealedMessage
	case errors.Is(err, seal.ErrInvalidBase64), errors.Is(err, seal.ErrTooShort):
		return http.StatusBadRequest, "Invalid encrypted payload: " + err.Error()
	case errors.Is(err, seal.ErrDecryption):
		return http.StatusUnprocessableEntity, "Decryption failed"
	case errors.Is(err, seal.ErrNotUTF8):
		return http.StatusUnprocessableEntity, "Decrypted payload is not valid UTF-8"
	default:
		return http.StatusInternalServerError, "Error decoding payload"
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}
