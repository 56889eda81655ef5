// ABOUTME: Data model for verifiable credentials and presentations
// ABOUTME: Parses caller-supplied presentations and exposes proof metadata

package credential

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Parsing errors
var (
	ErrEmptyPresentation = errors.New("empty presentation")
	ErrNoCredential      = errors.New("presentation carries no credential")
)

// Proof binds a credential or presentation to the key that signed it.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created,omitempty"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose,omitempty"`
	Challenge          string `json:"challenge,omitempty"`
	ProofValue         string `json:"proofValue,omitempty"`
}

// VerifiableCredential is a single signed credential. CredentialSubject holds
// the subject's claims; the "id" claim is the subject DID.
type VerifiableCredential struct {
	Context           []string       `json:"@context,omitempty"`
	ID                string         `json:"id,omitempty"`
	Type              []string       `json:"type,omitempty"`
	Issuer            string         `json:"issuer,omitempty"`
	IssuanceDate      string         `json:"issuanceDate,omitempty"`
	ExpirationDate    string         `json:"expirationDate,omitempty"`
	CredentialSubject map[string]any `json:"credentialSubject"`
	Proof             Proof          `json:"proof"`
}

// Presentation is a bundle of credentials plus a proof binding it to a
// challenge. The holder's DID is the presentation proof's verification method;
// the issuer's is the first credential proof's.
type Presentation struct {
	Context              []string               `json:"@context,omitempty"`
	Type                 []string               `json:"type,omitempty"`
	VerifiableCredential []VerifiableCredential `json:"verifiableCredential"`
	Proof                Proof                  `json:"proof"`
}

// Parse decodes a raw presentation and checks it carries at least one credential.
func Parse(raw []byte) (*Presentation, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPresentation
	}

	var vp Presentation
	if err := json.Unmarshal(raw, &vp); err != nil {
		return nil, fmt.Errorf("decoding presentation: %w", err)
	}

	if len(vp.VerifiableCredential) == 0 {
		return nil, ErrNoCredential
	}

	return &vp, nil
}

// FirstSubject returns the subject claims of the first embedded credential.
func (p *Presentation) FirstSubject() map[string]any {
	return p.VerifiableCredential[0].CredentialSubject
}

// IssuerMethod returns the verification method that signed the first credential.
func (p *Presentation) IssuerMethod() string {
	return p.VerifiableCredential[0].Proof.VerificationMethod
}

// HolderMethod returns the verification method that signed the presentation itself.
func (p *Presentation) HolderMethod() string {
	return p.Proof.VerificationMethod
}
