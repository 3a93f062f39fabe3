package admission

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientKey_XRealIPWins(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/limited", nil)
	r.Header.Set("X-Real-IP", " 1.2.3.4 ")
	r.Header.Set("X-Forwarded-For", "5.6.7.8, 9.9.9.9")
	r.RemoteAddr = "10.0.0.1:5555"

	assert.Equal(t, "1.2.3.4", clientKey(r))
}

func TestClientKey_XForwardedForFallback(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/limited", nil)
	r.Header.Set("X-Forwarded-For", " 5.6.7.8 , 9.9.9.9")
	r.RemoteAddr = "10.0.0.1:5555"

	assert.Equal(t, "5.6.7.8", clientKey(r))
}

func TestClientKey_RemoteAddrFallback(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/limited", nil)
	r.RemoteAddr = "10.0.0.1:5555"

	assert.Equal(t, "10.0.0.1:5555", clientKey(r))
}

func TestClientKey_Unknown(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/limited", nil)
	assert.Equal(t, "unknown", clientKey(r))
}
