package attest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

// testChain builds a self-signed root plus a leaf signed by it, returning the
// PEM chain leaf first and the leaf's signing key.
func testChain(t *testing.T) ([]string, *rsa.PrivateKey) {
	t.Helper()

	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate root key: %v", err)
	}
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("create root cert: %v", err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		t.Fatalf("parse root cert: %v", err)
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "test leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, rootCert, &leafKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("create leaf cert: %v", err)
	}

	encode := func(der []byte) string {
		return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	}
	return []string{encode(leafDER), encode(rootDER)}, leafKey
}

func signManifest(t *testing.T, manifest json.RawMessage, key *rsa.PrivateKey) string {
	t.Helper()
	canonical, err := canonicalManifest(manifest)
	if err != nil {
		t.Fatalf("canonicalize manifest: %v", err)
	}
	digest := sha256.Sum256(canonical)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign manifest: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerify_ValidDocument(t *testing.T) {
	chain, leafKey := testChain(t)
	manifest := json.RawMessage(`{"version": "1", "components": ["inference"]}`)

	doc := &Document{
		Manifest:     manifest,
		ManifestHash: "abc123",
		Signature:    signManifest(t, manifest, leafKey),
		Certificates: chain,
	}

	r := Verify(doc, "")
	if !r.Verified() {
		t.Fatalf("expected verified report, got %+v", r.Checks)
	}
	if len(r.Checks) != 2 {
		t.Fatalf("pin check must be skipped without a pinned hash, got %d checks", len(r.Checks))
	}
}

func TestVerify_KeyOrderDoesNotAffectSignature(t *testing.T) {
	chain, leafKey := testChain(t)
	signed := json.RawMessage(`{"a": 1, "b": 2}`)
	reordered := json.RawMessage(`{"b": 2, "a": 1}`)

	doc := &Document{
		Manifest:     reordered,
		Signature:    signManifest(t, signed, leafKey),
		Certificates: chain,
	}
	if r := Verify(doc, ""); !r.Verified() {
		t.Fatalf("reordered keys must verify, got %+v", r.Checks)
	}
}

func TestVerify_TamperedManifest(t *testing.T) {
	chain, leafKey := testChain(t)
	signed := json.RawMessage(`{"version": "1"}`)

	doc := &Document{
		Manifest:     json.RawMessage(`{"version": "2"}`),
		Signature:    signManifest(t, signed, leafKey),
		Certificates: chain,
	}

	r := Verify(doc, "")
	if r.Verified() {
		t.Fatal("tampered manifest must not verify")
	}
	for _, c := range r.Checks {
		if c.Name == "manifest signature" && c.OK() {
			t.Fatal("manifest signature check should have failed")
		}
		if c.Name == "certificate chain" && !c.OK() {
			t.Fatalf("chain is intact, check should pass: %v", c.Err)
		}
	}
}

func TestVerify_BrokenChain(t *testing.T) {
	chain, leafKey := testChain(t)
	manifest := json.RawMessage(`{"version": "1"}`)

	// Reversing the chain makes the root the leaf, which the real leaf never
	// signed.
	doc := &Document{
		Manifest:     manifest,
		Signature:    signManifest(t, manifest, leafKey),
		Certificates: []string{chain[1], chain[0]},
	}
	if Verify(doc, "").Verified() {
		t.Fatal("broken chain must not verify")
	}
}

func TestVerify_MalformedCertificates(t *testing.T) {
	doc := &Document{
		Manifest:     json.RawMessage(`{}`),
		Signature:    "c2ln",
		Certificates: []string{"not a certificate"},
	}
	r := Verify(doc, "")
	if r.Verified() {
		t.Fatal("malformed certificates must not verify")
	}
	for _, c := range r.Checks {
		if c.OK() {
			t.Fatalf("check %q should fail without a usable chain", c.Name)
		}
	}
}

func TestVerify_HashPin(t *testing.T) {
	chain, leafKey := testChain(t)
	manifest := json.RawMessage(`{"version": "1"}`)
	doc := &Document{
		Manifest:     manifest,
		ManifestHash: "expectedhash",
		Signature:    signManifest(t, manifest, leafKey),
		Certificates: chain,
	}

	if r := Verify(doc, "expectedhash"); !r.Verified() {
		t.Fatalf("matching pin must verify, got %+v", r.Checks)
	}
	if r := Verify(doc, "otherhash"); r.Verified() {
		t.Fatal("mismatched pin must not verify")
	}
}
