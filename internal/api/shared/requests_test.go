package shared

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signInBody struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type selfValidating struct {
	Name string `json:"name"`
}

var errNameRequired = errors.New("name required")

func (s selfValidating) Validate() error {
	if s.Name == "" {
		return errNameRequired
	}
	return nil
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"email":"a@b.co","password":"pw"}`, false},
		{"malformed", `{"email":`, true},
		{"unknown field", `{"email":"a@b.co","role":"admin"}`, true},
		{"empty", ``, true},
		{"too large", `{"email":"` + strings.Repeat("a", MaxJSONBodyBytes) + `"}`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var got signInBody
			err := DecodeJSON(httptest.NewRecorder(), r, &got)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a@b.co", got.Email)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(signInBody{Email: "a@b.co", Password: "pw"}))
	assert.Error(t, ValidateRequest(signInBody{Email: "nope", Password: "pw"}))
	assert.Error(t, ValidateRequest(signInBody{Email: "a@b.co"}))

	assert.NoError(t, ValidateRequest(selfValidating{Name: "x"}))
	assert.ErrorIs(t, ValidateRequest(selfValidating{}), errNameRequired)
}
