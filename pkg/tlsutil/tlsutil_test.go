package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateTestCert creates a self-signed certificate for cn
func generateTestCert(t *testing.T, cn string) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   cn,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}

// setupTestFiles writes a cert, its key and the cert again as a CA
func setupTestFiles(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()

	dir := t.TempDir()
	certPEM, keyPEM := generateTestCert(t, "localhost")

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	caFile = filepath.Join(dir, "ca.pem")

	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return certFile, keyFile, caFile
}

func TestLoadServerConfig(t *testing.T) {
	certFile, keyFile, caFile := setupTestFiles(t)

	tests := []struct {
		name    string
		cfg     ServerConfig
		wantNil bool
		wantErr bool
		checkFn func(*testing.T, *tls.Config)
	}{
		{
			name:    "disabled",
			cfg:     ServerConfig{},
			wantNil: true,
		},
		{
			name: "TLS 1.3",
			cfg:  ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"},
			checkFn: func(t *testing.T, c *tls.Config) {
				assert.Len(t, c.Certificates, 1)
				assert.Equal(t, uint16(tls.VersionTLS13), c.MinVersion)
				assert.Equal(t, tls.NoClientCert, c.ClientAuth)
			},
		},
		{
			name: "optional client certs",
			cfg:  ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, ClientCAFiles: []string{caFile}},
			checkFn: func(t *testing.T, c *tls.Config) {
				assert.NotNil(t, c.ClientCAs)
				assert.Equal(t, tls.VerifyClientCertIfGiven, c.ClientAuth)
				assert.Nil(t, c.VerifyPeerCertificate)
			},
		},
		{
			name: "required client certs with CN allow list",
			cfg: ServerConfig{
				Enabled:           true,
				CertFile:          certFile,
				KeyFile:           keyFile,
				ClientCAFiles:     []string{caFile},
				RequireClientCert: true,
				AllowedClientCNs:  []string{"edge-01"},
			},
			checkFn: func(t *testing.T, c *tls.Config) {
				assert.Equal(t, tls.RequireAndVerifyClientCert, c.ClientAuth)
				assert.NotNil(t, c.VerifyPeerCertificate)
			},
		},
		{
			name:    "missing cert file",
			cfg:     ServerConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: keyFile},
			wantErr: true,
		},
		{
			name:    "missing client CA",
			cfg:     ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, ClientCAFiles: []string{"/nonexistent/ca.pem"}},
			wantErr: true,
		},
		{
			name:    "client CA is not PEM",
			cfg:     ServerConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, ClientCAFiles: []string{keyFile}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadServerConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			tt.checkFn(t, got)
		})
	}
}

func TestLoadClientConfig(t *testing.T) {
	certFile, keyFile, caFile := setupTestFiles(t)

	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr bool
		checkFn func(*testing.T, *tls.Config)
	}{
		{
			name: "defaults",
			cfg:  ClientConfig{},
			checkFn: func(t *testing.T, c *tls.Config) {
				assert.NotNil(t, c.RootCAs)
				assert.Equal(t, uint16(tls.VersionTLS12), c.MinVersion)
				assert.False(t, c.InsecureSkipVerify)
				assert.Empty(t, c.Certificates)
			},
		},
		{
			name: "extra CA and TLS 1.3",
			cfg:  ClientConfig{CAFiles: []string{caFile, caFile}, MinVersion: "1.3"},
			checkFn: func(t *testing.T, c *tls.Config) {
				assert.Equal(t, uint16(tls.VersionTLS13), c.MinVersion)
			},
		},
		{
			name: "insecure",
			cfg:  ClientConfig{InsecureSkipVerify: true},
			checkFn: func(t *testing.T, c *tls.Config) {
				assert.True(t, c.InsecureSkipVerify)
			},
		},
		{
			name: "client certificate",
			cfg:  ClientConfig{CertFile: certFile, KeyFile: keyFile},
			checkFn: func(t *testing.T, c *tls.Config) {
				assert.Len(t, c.Certificates, 1)
			},
		},
		{
			name:    "missing CA file",
			cfg:     ClientConfig{CAFiles: []string{"/nonexistent/ca.pem"}},
			wantErr: true,
		},
		{
			name:    "cert without key",
			cfg:     ClientConfig{CertFile: certFile},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadClientConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			tt.checkFn(t, got)
		})
	}
}

func TestClientConfig_Enabled(t *testing.T) {
	var nilCfg *ClientConfig
	assert.False(t, nilCfg.Enabled())
	assert.False(t, (&ClientConfig{}).Enabled())
	assert.True(t, (&ClientConfig{MinVersion: "1.3"}).Enabled())
	assert.True(t, (&ClientConfig{CAFiles: []string{"ca.pem"}}).Enabled())
}

func TestVerifyAllowedClientCN(t *testing.T) {
	certPEM, _ := generateTestCert(t, "edge-01")
	block, _ := pem.Decode(certPEM)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	chains := [][]*x509.Certificate{{cert}}
	assert.NoError(t, verifyAllowedClientCN(chains, []string{"edge-00", "edge-01"}))
	assert.Error(t, verifyAllowedClientCN(chains, []string{"edge-02"}))
	assert.Error(t, verifyAllowedClientCN(nil, []string{"edge-01"}))
}

func TestParseTLSVersion(t *testing.T) {
	tests := []struct {
		version string
		want    uint16
	}{
		{"1.3", tls.VersionTLS13},
		{"1.2", tls.VersionTLS12},
		{"", tls.VersionTLS12},
		{"1.1", tls.VersionTLS12},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, parseTLSVersion(tt.version))
		})
	}
}
