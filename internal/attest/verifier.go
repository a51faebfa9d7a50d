// Package attest performs deep verification of the PrivateMode attestation
// document. The companion proxy already validates the hardware evidence; the
// checks here let an operator independently confirm that the certificate
// chain is consistent and that the manifest was signed by the chain's leaf.
package attest

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
)

// Document is the attestation evidence served by the proxy's /attestation
// endpoint.
type Document struct {
	Manifest     json.RawMessage `json:"manifest"`
	ManifestHash string          `json:"manifest_hash"`
	Signature    string          `json:"signature"`
	Certificates []string        `json:"certificates"`
}

// Check is the outcome of one verification step.
type Check struct {
	Name string
	Err  error
}

func (c Check) OK() bool { return c.Err == nil }

// Report aggregates the verification steps run against one document.
type Report struct {
	Checks []Check
}

func (r *Report) add(name string, err error) {
	r.Checks = append(r.Checks, Check{Name: name, Err: err})
}

// Verified reports whether every check passed.
func (r *Report) Verified() bool {
	if len(r.Checks) == 0 {
		return false
	}
	for _, c := range r.Checks {
		if c.Err != nil {
			return false
		}
	}
	return true
}

// Verify runs all checks against the document. expectedManifestHash is a
// known-good hash pinned by the operator; when empty the pin check is
// skipped, since there is nothing to compare against.
func Verify(doc *Document, expectedManifestHash string) *Report {
	r := &Report{}

	certs, err := parseCertificates(doc.Certificates)
	if err != nil {
		r.add("certificate chain", err)
		r.add("manifest signature", errors.New("no usable certificate chain"))
	} else {
		r.add("certificate chain", verifyChain(certs))
		r.add("manifest signature", verifyManifestSignature(doc.Manifest, doc.Signature, certs[0]))
	}

	if expectedManifestHash != "" {
		r.add("manifest hash pin", verifyHashPin(doc.ManifestHash, expectedManifestHash))
	}
	return r
}

func parseCertificates(pems []string) ([]*x509.Certificate, error) {
	if len(pems) == 0 {
		return nil, errors.New("attestation carries no certificates")
	}
	certs := make([]*x509.Certificate, 0, len(pems))
	for i, p := range pems {
		block, _ := pem.Decode([]byte(p))
		if block == nil {
			return nil, fmt.Errorf("certificate %d is not PEM encoded", i)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// verifyChain checks that each certificate is signed by its successor. The
// chain is ordered leaf first, root last.
func verifyChain(certs []*x509.Certificate) error {
	for i := 0; i < len(certs)-1; i++ {
		if err := certs[i].CheckSignatureFrom(certs[i+1]); err != nil {
			return fmt.Errorf("certificate %d not signed by its issuer: %w", i, err)
		}
	}
	return nil
}

// verifyManifestSignature checks the RSA signature over the manifest digest
// against the leaf certificate's public key.
func verifyManifestSignature(manifest json.RawMessage, signature string, leaf *x509.Certificate) error {
	if len(manifest) == 0 {
		return errors.New("attestation carries no manifest")
	}
	if signature == "" {
		return errors.New("attestation carries no signature")
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	canonical, err := canonicalManifest(manifest)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(canonical)

	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("unsupported signing key type %T", leaf.PublicKey)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return errors.New("manifest signature does not match the leaf certificate")
	}
	return nil
}

// canonicalManifest re-marshals the manifest so key order in the document
// cannot change the digest.
func canonicalManifest(manifest json.RawMessage) ([]byte, error) {
	var v any
	if err := json.Unmarshal(manifest, &v); err != nil {
		return nil, fmt.Errorf("manifest is not valid JSON: %w", err)
	}
	return json.Marshal(v)
}

func verifyHashPin(got, want string) error {
	if got == "" {
		return errors.New("attestation carries no manifest hash")
	}
	if got != want {
		return fmt.Errorf("manifest hash %s does not match pinned hash %s", preview(got), preview(want))
	}
	return nil
}

func preview(hash string) string {
	if len(hash) > 16 {
		return hash[:16] + "..."
	}
	return hash
}
