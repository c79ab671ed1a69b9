package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/voucherly/redemption-service/internal/domain"
)

// structuralErrorBody is the 4xx/5xx envelope. Business-rule outcomes never
// use it; they travel as 200 responses with success:false.
type structuralErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeStructuralError(w http.ResponseWriter, status int, err error) {
	body := structuralErrorBody{Error: err.Error()}
	var de *domain.DomainError
	if derr, ok := err.(*domain.DomainError); ok {
		de = derr
	}
	if de != nil {
		body.Error = de.Message
		body.Code = string(de.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
