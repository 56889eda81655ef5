// ABOUTME: Onboarding flow that issues credentials to new users
// ABOUTME: Covers the mailed-link path and direct third-party issuance

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/credential"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/mail"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/token"
)

// qrPayload is embedded in the deep link so the wallet knows what the scanned
// link is for.
type qrPayload struct {
	QRType string `json:"QRType"`
	URL    string `json:"url"`
}

// Register onboards a user. With thirdParty set the user map must carry a
// "did" and a signed credential is issued and returned directly. Otherwise
// the user attributes are signed into a short-lived JWT, wrapped in an
// issuance link, and mailed to the user's "email" address; the returned
// credential is nil on that path.
func (s *Service) Register(ctx context.Context, user map[string]any, thirdParty bool) (*credential.VerifiableCredential, error) {
	if len(user) == 0 {
		return nil, fmt.Errorf("%w: user object is null or empty", ErrValidation)
	}

	if thirdParty {
		did, _ := user["did"].(string)
		if did == "" {
			return nil, fmt.Errorf("%w: did must be passed with third-party registration", ErrValidation)
		}
		return s.issueCredential(ctx, user)
	}

	if s.mailer == nil {
		return nil, ErrMailNotConfigured
	}
	email, _ := user["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: email is a required property", ErrValidation)
	}

	regToken, err := s.issuer.SignClaims(token.Claims(user))
	if err != nil {
		return nil, fmt.Errorf("signing registration token: %w", err)
	}
	link := s.opts.BaseURL + s.opts.VerifyResourcePath + "?token=" + regToken

	deepLink, err := s.deepLink(link)
	if err != nil {
		return nil, err
	}

	name, _ := user["name"].(string)
	body := mail.RenderIssuance(mail.TemplateData{
		AppName:      s.opts.AppName,
		ReceiverName: name,
		Link:         link,
		DeepLinkURL:  deepLink,
	})

	subject := s.opts.AppName + " Auth Credential Issuance"
	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		return nil, fmt.Errorf("sending issuance mail: %w", err)
	}

	s.logger.Info("issuance mail sent", "email", email)
	return nil, nil
}

// GetCredential redeems a registration token for a signed credential bound to
// the DID the wallet presents when following the issuance link.
func (s *Service) GetCredential(ctx context.Context, regToken, did string) (*credential.VerifiableCredential, error) {
	if regToken == "" || did == "" {
		return nil, fmt.Errorf("%w: token and did are required", ErrValidation)
	}

	claims, err := s.issuer.VerifyAccess(regToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToken, err)
	}

	user := map[string]any(claims)
	user["did"] = did
	return s.issueCredential(ctx, user)
}

// issueCredential generates and signs a credential over the user attributes.
// Signing metadata from the registration JWT is dropped first so it does not
// end up as a credential attribute.
func (s *Service) issueCredential(ctx context.Context, user map[string]any) (*credential.VerifiableCredential, error) {
	did, _ := user["did"].(string)

	attributes := make(map[string]any, len(user))
	for k, v := range user {
		switch k {
		case "iat", "exp", "nbf", "jti", "did":
			continue
		}
		attributes[k] = v
	}

	vc, err := s.verifier.GenerateCredential(ctx, did, attributes)
	if err != nil {
		return nil, fmt.Errorf("generating credential: %w", err)
	}

	signed, err := s.verifier.SignCredential(ctx, vc, s.opts.Keys)
	if err != nil {
		return nil, fmt.Errorf("signing credential: %w", err)
	}

	s.logger.Info("credential issued", "did", did)
	return signed, nil
}

// deepLink wraps an issuance link into the wallet deep-link form, anchored at
// the node's origin.
func (s *Service) deepLink(link string) (string, error) {
	nodeURL, err := url.Parse(s.opts.NodeURL)
	if err != nil {
		return "", fmt.Errorf("parsing node url: %w", err)
	}

	payload, err := json.Marshal(qrPayload{QRType: "ISSUE_CRED", URL: link})
	if err != nil {
		return "", fmt.Errorf("encoding deep link payload: %w", err)
	}

	origin := nodeURL.Scheme + "://" + nodeURL.Host
	return origin + "/hsauth/deeplink.html?deeplink=" +
		url.QueryEscape("hypersign:deeplink?url="+string(payload)), nil
}
