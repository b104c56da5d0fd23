package tlsutil

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_OnlyAEADSuites(t *testing.T) {
	cfg := Config()

	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	aead := []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	}
	for _, suite := range cfg.CipherSuites {
		assert.Contains(t, aead, suite, "cipher suite %d is not AEAD", suite)
	}
}

func TestTransport_CarriesHardenedTLS(t *testing.T) {
	tr := Transport()

	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.Positive(t, tr.MaxIdleConns)
}

func TestClient_TimeoutAndTransport(t *testing.T) {
	client := Client(15 * time.Second)

	assert.Equal(t, 15*time.Second, client.Timeout)
	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.NotNil(t, tr.TLSClientConfig)
}
