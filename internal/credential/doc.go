// Package credential models verifiable credentials and presentations and
// defines the boundary to the external identity verifier.
//
// The authentication core never does credential cryptography itself: the
// Verifier interface delegates verification, issuance, and signing to an SSI
// node. NodeClient is the production implementation; tests substitute fakes.
package credential
