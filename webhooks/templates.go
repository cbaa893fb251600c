package webhooks

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-leads/core"
)

type ProviderWebhookTemplate struct {
	ProviderID string
	Verifier   Verifier
	Extractor  DeliveryIDExtractor
}

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req core.InboundRequest) (string, error) {
		for _, key := range keys {
			if value := strings.TrimSpace(headerValue(req.Headers, key)); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
	}
}

func ChainDeliveryIDExtractors(extractors ...DeliveryIDExtractor) DeliveryIDExtractor {
	list := append([]DeliveryIDExtractor(nil), extractors...)
	return func(req core.InboundRequest) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			deliveryID, err := extractor(req)
			if err == nil && strings.TrimSpace(deliveryID) != "" {
				return strings.TrimSpace(deliveryID), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
	}
}

// NewMetaLeadWebhookTemplate verifies Graph-style deliveries. The current
// signature arrives on X-Hub-Signature-256 ("sha256=" marker); older app
// configurations still send the legacy X-Hub-Signature ("sha1=" marker).
func NewMetaLeadWebhookTemplate(secret string) ProviderWebhookTemplate {
	secret = strings.TrimSpace(secret)
	return ProviderWebhookTemplate{
		ProviderID: "metalead",
		Verifier: ChainVerifiers(
			HeaderHMACVerifier{
				Header: "X-Hub-Signature-256",
				Secret: secret,
			},
			HeaderHMACVerifier{
				Header: "X-Hub-Signature",
				Secret: secret,
			},
		),
		Extractor: HeaderDeliveryIDExtractor("X-Hub-Delivery-Id", "X-Hub-Signature-256", "X-Hub-Signature"),
	}
}

// NewEstateXMLWebhookTemplate covers the XML push provider, which signs
// nothing; when a shared push token is configured it is checked, otherwise
// the only gate is the payload's ActionStatus attribute.
func NewEstateXMLWebhookTemplate(pushToken string) ProviderWebhookTemplate {
	pushToken = strings.TrimSpace(pushToken)
	var verifier Verifier = AllowAllVerifier{}
	if pushToken != "" {
		verifier = HeaderTokenVerifier{
			Header: "X-Push-Token",
			Token:  pushToken,
		}
	}
	return ProviderWebhookTemplate{
		ProviderID: "estatexml",
		Verifier:   verifier,
		Extractor:  HeaderDeliveryIDExtractor("X-Request-Id", "X-Push-Delivery-Id"),
	}
}
