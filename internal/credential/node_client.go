// ABOUTME: HTTP client for the SSI node's credential and presentation endpoints
// ABOUTME: Thin Verifier implementation; all cryptography happens node-side

package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// NodeClient implements Verifier against an SSI node's REST API.
type NodeClient struct {
	baseURL  string
	schemaID string
	client   *http.Client
}

// NewNodeClient creates a client for the node at baseURL. Trailing slashes
// are stripped so path joining stays predictable.
func NewNodeClient(baseURL, schemaID string) *NodeClient {
	return &NodeClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		schemaID: schemaID,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// VerifyPresentation asks the node to verify a presentation against its challenge.
func (n *NodeClient) VerifyPresentation(ctx context.Context, req VerifyRequest) (bool, error) {
	body := map[string]any{
		"presentation": req.Presentation,
		"challenge":    req.Challenge,
		"issuerDid":    req.IssuerDID,
		"holderDid":    req.HolderDID,
	}

	var result struct {
		Verified bool `json:"verified"`
	}
	if err := n.post(ctx, "/api/v1/presentation/verify", body, &result); err != nil {
		return false, err
	}
	return result.Verified, nil
}

// GenerateCredential builds an unsigned credential for the subject from the attribute map.
func (n *NodeClient) GenerateCredential(ctx context.Context, subjectDID string, attributes map[string]any) (*VerifiableCredential, error) {
	body := map[string]any{
		"schemaUrl":     n.baseURL + "/api/v1/schema/" + n.schemaID,
		"subjectDid":    subjectDID,
		"attributesMap": attributes,
	}

	var vc VerifiableCredential
	if err := n.post(ctx, "/api/v1/credential", body, &vc); err != nil {
		return nil, err
	}
	return &vc, nil
}

// SignCredential signs a credential with the issuer key.
func (n *NodeClient) SignCredential(ctx context.Context, vc *VerifiableCredential, keys KeyPair) (*VerifiableCredential, error) {
	body := map[string]any{
		"credential":       vc,
		"issuerKeyId":      keys.PublicKeyID,
		"privateKeyBase58": keys.PrivateKeyBase58,
	}

	var signed VerifiableCredential
	if err := n.post(ctx, "/api/v1/credential/sign", body, &signed); err != nil {
		return nil, err
	}
	return &signed, nil
}

// GeneratePresentation wraps a credential into an unsigned presentation.
func (n *NodeClient) GeneratePresentation(ctx context.Context, vc *VerifiableCredential, holderKeyID string) (*Presentation, error) {
	body := map[string]any{
		"credential":  vc,
		"holderKeyId": holderKeyID,
	}

	var vp Presentation
	if err := n.post(ctx, "/api/v1/presentation", body, &vp); err != nil {
		return nil, err
	}
	return &vp, nil
}

// SignPresentation signs a presentation over the given challenge.
func (n *NodeClient) SignPresentation(ctx context.Context, vp *Presentation, keys KeyPair, challenge string) (*Presentation, error) {
	body := map[string]any{
		"presentation":     vp,
		"holderKeyId":      keys.PublicKeyID,
		"privateKeyBase58": keys.PrivateKeyBase58,
		"challenge":        challenge,
	}

	var signed Presentation
	if err := n.post(ctx, "/api/v1/presentation/sign", body, &signed); err != nil {
		return nil, err
	}
	return &signed, nil
}

// post sends a JSON request to the node and decodes the JSON response into out.
func (n *NodeClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("node returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding node response: %w", err)
	}
	return nil
}
