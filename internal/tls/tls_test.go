package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	standardtls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func leafOf(t *testing.T, cert *standardtls.Certificate) *x509.Certificate {
	t.Helper()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	return leaf
}

func TestSelfSigned_Defaults(t *testing.T) {
	t.Parallel()

	cert, err := SelfSigned()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaf := leafOf(t, cert)

	if leaf.Subject.CommonName != "localhost" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "localhost")
	}
	if !slices.Contains(leaf.DNSNames, "localhost") {
		t.Errorf("DNS SANs: %v does not contain localhost", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IP SANs: got %v", leaf.IPAddresses)
	}

	// Approximately one year
	valid := leaf.NotAfter.Sub(leaf.NotBefore)
	if valid < selfSignedValidity || valid > selfSignedValidity+time.Hour {
		t.Errorf("validity: got %v, want about %v", valid, selfSignedValidity)
	}

	ecKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		t.Fatal("public key is not ECDSA")
	}
	if ecKey.Curve != elliptic.P256() {
		t.Errorf("curve: got %v, want P-256", ecKey.Curve.Params().Name)
	}
	if leaf.Issuer.CommonName != leaf.Subject.CommonName {
		t.Errorf("issuer CN %q does not match subject CN %q", leaf.Issuer.CommonName, leaf.Subject.CommonName)
	}
}

func TestSelfSigned_Hosts(t *testing.T) {
	t.Parallel()

	cert, err := SelfSigned("mailer.internal", "10.0.0.7", "mailer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaf := leafOf(t, cert)

	if leaf.Subject.CommonName != "mailer.internal" {
		t.Errorf("CN: got %q", leaf.Subject.CommonName)
	}
	if !slices.Equal(leaf.DNSNames, []string{"mailer.internal", "mailer"}) {
		t.Errorf("DNS SANs: got %v", leaf.DNSNames)
	}
	if len(leaf.IPAddresses) != 1 || leaf.IPAddresses[0].String() != "10.0.0.7" {
		t.Errorf("IP SANs: got %v", leaf.IPAddresses)
	}
	if err := leaf.VerifyHostname("mailer.internal"); err != nil {
		t.Errorf("VerifyHostname: %v", err)
	}
}

func TestLoad_SelfSigned(t *testing.T) {
	t.Parallel()

	cfg, mode, err := Load("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != ModeSelfSigned {
		t.Errorf("mode: got %q, want %q", mode, ModeSelfSigned)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates: got %d, want 1", len(cfg.Certificates))
	}
	if cfg.MinVersion != standardtls.VersionTLS12 {
		t.Errorf("MinVersion: got %d, want TLS 1.2 (%d)", cfg.MinVersion, standardtls.VersionTLS12)
	}
}

func TestLoad_FromFiles(t *testing.T) {
	t.Parallel()

	cert, err := SelfSigned("files.example")
	if err != nil {
		t.Fatalf("SelfSigned: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(cert.PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, mode, err := Load(certPath, keyPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != ModeFile {
		t.Errorf("mode: got %q, want %q", mode, ModeFile)
	}
	loaded := cfg.Certificates[0]
	if got := leafOf(t, &loaded).Subject.CommonName; got != "files.example" {
		t.Errorf("CN: got %q", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		certFile string
		keyFile  string
	}{
		{name: "files not found", certFile: "/nonexistent/cert.pem", keyFile: "/nonexistent/key.pem"},
		{name: "cert only", certFile: "/nonexistent/cert.pem"},
		{name: "key only", keyFile: "/nonexistent/key.pem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := Load(tt.certFile, tt.keyFile); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
