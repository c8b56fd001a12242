// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package schemapkg verifies a schema description's PKCS7 signature before
// handing its content to schema.Load, for callers that distribute schema XML
// out-of-band (e.g. fetched over a network rather than embedded at build
// time) and want the same signer-authenticity guarantee Authenticode gives a
// signed PE image, applied here to an untrusted schema document instead.
package schemapkg

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"

	"go.mozilla.org/pkcs7"

	"github.com/blockfmt/engine/schema"
)

// ErrNotSigned is returned when the input isn't a parseable PKCS7 structure
// at all.
var ErrNotSigned = errors.New("schemapkg: not a PKCS7 signed message")

// ErrSignatureInvalid is returned when the PKCS7 structure parses but its
// signature does not verify against its own embedded signer certificate.
var ErrSignatureInvalid = errors.New("schemapkg: signature does not verify")

// ErrUntrustedSigner is returned when the signature itself is valid but its
// certificate does not chain to any of the supplied trusted roots.
var ErrUntrustedSigner = errors.New("schemapkg: signer certificate is not trusted")

// SignerInfo summarizes the certificate that signed a schema package,
// mirroring the teacher's CertInfo (a JSON-friendly reduction of the full
// x509.Certificate rather than the certificate itself).
type SignerInfo struct {
	Issuer       string
	Subject      string
	SerialNumber string
}

func describeSigner(cert *x509.Certificate) SignerInfo {
	info := SignerInfo{SerialNumber: cert.SerialNumber.String()}

	if len(cert.Issuer.Country) > 0 {
		info.Issuer = cert.Issuer.Country[0]
	}
	if len(cert.Issuer.Organization) > 0 {
		info.Issuer += ", " + cert.Issuer.Organization[0]
	}
	info.Issuer += ", " + cert.Issuer.CommonName

	if len(cert.Subject.Country) > 0 {
		info.Subject = cert.Subject.Country[0]
	}
	if len(cert.Subject.Organization) > 0 {
		info.Subject += ", " + cert.Subject.Organization[0]
	}
	info.Subject += ", " + cert.Subject.CommonName

	return info
}

// Verify parses a PKCS7-signed schema package and checks its signature. If
// roots is non-nil, the signer certificate must also chain to one of those
// roots (ErrUntrustedSigner otherwise); if roots is nil, only the embedded
// signature itself is checked, the same reduced guarantee the teacher falls
// back to when certificate validation is disabled. On success it returns the
// signed content (the schema XML document) and a summary of the signer.
func Verify(signed []byte, roots *x509.CertPool) ([]byte, SignerInfo, error) {
	p7, err := pkcs7.Parse(signed)
	if err != nil {
		return nil, SignerInfo{}, fmt.Errorf("%w: %v", ErrNotSigned, err)
	}
	if len(p7.Signers) == 0 || len(p7.Certificates) == 0 {
		return nil, SignerInfo{}, fmt.Errorf("%w: no signers present", ErrNotSigned)
	}

	if roots != nil {
		if err := p7.VerifyWithChain(roots); err != nil {
			return nil, SignerInfo{}, fmt.Errorf("%w: %v", ErrUntrustedSigner, err)
		}
	} else if err := p7.Verify(); err != nil {
		return nil, SignerInfo{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	serial := p7.Signers[0].IssuerAndSerialNumber.SerialNumber
	var signer *x509.Certificate
	for _, cert := range p7.Certificates {
		if cert.SerialNumber != nil && serial != nil && cert.SerialNumber.Cmp(serial) == 0 {
			signer = cert
			break
		}
	}
	if signer == nil {
		signer = p7.Certificates[0]
	}

	return p7.Content, describeSigner(signer), nil
}

// Load verifies signed as a PKCS7 schema package (see Verify) and, on
// success, loads the signed content through schema.Load.
func Load(signed []byte, roots *x509.CertPool) (*schema.Schema, SignerInfo, []schema.Warning, error) {
	content, signer, err := Verify(signed, roots)
	if err != nil {
		return nil, SignerInfo{}, nil, err
	}
	s, warnings, err := schema.Load(bytes.NewReader(content))
	if err != nil {
		return nil, signer, nil, err
	}
	return s, signer, warnings, nil
}
