// ABOUTME: Interface to the external identity verifier (SSI node)
// ABOUTME: Covers presentation verification and credential issuance operations

package credential

import "context"

// VerifyRequest carries everything the verifier needs to check a presentation
// against the challenge it was signed over.
type VerifyRequest struct {
	Presentation *Presentation
	Challenge    string
	IssuerDID    string
	HolderDID    string
}

// KeyPair identifies the service's own signing key on the node.
type KeyPair struct {
	PublicKeyID      string
	PrivateKeyBase58 string
}

// Verifier is the identity-verification capability this service delegates to.
// Implementations perform the actual cryptography; this core only routes
// results. All methods honor the caller's context deadline.
type Verifier interface {
	// VerifyPresentation reports whether the presentation is valid for the
	// given challenge and issuer/holder identities.
	VerifyPresentation(ctx context.Context, req VerifyRequest) (bool, error)

	// GenerateCredential builds an unsigned credential for the subject DID
	// from the given attribute map, against the configured schema.
	GenerateCredential(ctx context.Context, subjectDID string, attributes map[string]any) (*VerifiableCredential, error)

	// SignCredential signs a credential with the service's issuer key.
	SignCredential(ctx context.Context, vc *VerifiableCredential, keys KeyPair) (*VerifiableCredential, error)

	// GeneratePresentation wraps a credential into an unsigned presentation
	// held by the service itself.
	GeneratePresentation(ctx context.Context, vc *VerifiableCredential, holderKeyID string) (*Presentation, error)

	// SignPresentation signs a presentation over the given challenge.
	SignPresentation(ctx context.Context, vp *Presentation, keys KeyPair, challenge string) (*Presentation, error)
}
