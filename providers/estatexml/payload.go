// Package estatexml ingests the XML query-response push feed: a batch
// envelope whose ActionStatus attribute gates the whole delivery, containing
// property query details and contact details per response node. The feed
// carries no tenant context, so parsed items go through the fan-out router.
package estatexml

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-leads/core"
	"github.com/goliatone/go-leads/ingest"
)

const ProviderID = "estatexml"

type batchEnvelope struct {
	XMLName      xml.Name       `xml:"Xml"`
	ActionStatus string         `xml:"ActionStatus,attr"`
	ErrorMessage string         `xml:"ErrorMessage,attr"`
	Responses    []responseNode `xml:"Response"`
}

type responseNode struct {
	QueryDetail   queryDetail   `xml:"QueryDetail"`
	ContactDetail contactDetail `xml:"ContactDetail"`
}

type queryDetail struct {
	QueryID        string    `xml:"QueryId"`
	QueryDate      string    `xml:"QueryDate"`
	ListingPrice   string    `xml:"ListingPrice"`
	PropertyName   string    `xml:"PropertyName"`
	ProjectName    string    `xml:"ProjectName"`
	VerifiedStatus string    `xml:"VerifiedStatus"`
	ProductID      productID `xml:"ProductId"`
}

type productID struct {
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

type contactDetail struct {
	Name  string `xml:"Name"`
	Email string `xml:"Email"`
	Phone string `xml:"Phone"`
}

// BatchRejectedError carries the provider's own error message when the
// envelope's ActionStatus gates the whole delivery closed.
func batchRejectedError(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "provider reported a failed batch"
	}
	return goerrors.New(
		fmt.Sprintf("estatexml: batch rejected: %s", message),
		goerrors.CategoryBadInput,
	).WithTextCode(core.LeadsErrorBadInput)
}

// ParseBatch decodes the push body and converts every response node into an
// ingest item. ActionStatus=false rejects the whole batch before any node is
// looked at; response nodes without a query id are dropped.
func ParseBatch(body []byte) ([]ingest.Item, error) {
	payload, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(payload.ActionStatus), "true") {
		return nil, batchRejectedError(payload.ErrorMessage)
	}

	items := make([]ingest.Item, 0, len(payload.Responses))
	for _, node := range payload.Responses {
		queryID := strings.TrimSpace(node.QueryDetail.QueryID)
		if queryID == "" {
			continue
		}
		items = append(items, ingest.Item{
			ProviderID:  ProviderID,
			ExternalID:  queryID,
			CreatedTime: parseQueryDate(node.QueryDetail.QueryDate),
			Fields:      nodeFields(node),
		})
	}
	return items, nil
}

func decodeEnvelope(body []byte) (batchEnvelope, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return batchEnvelope{}, goerrors.New(
			"estatexml: push body is required",
			goerrors.CategoryBadInput,
		).WithTextCode(core.LeadsErrorBadInput)
	}
	// Some push configurations deliver the document form-encoded under an
	// "xml" key instead of as the raw body.
	if strings.HasPrefix(raw, "xml=") {
		decoded, err := url.QueryUnescape(strings.TrimPrefix(raw, "xml="))
		if err != nil {
			return batchEnvelope{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "estatexml: decode form-encoded push body").
				WithTextCode(core.LeadsErrorBadInput)
		}
		raw = decoded
	}

	var payload batchEnvelope
	if err := xml.Unmarshal([]byte(raw), &payload); err != nil {
		return batchEnvelope{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "estatexml: parse push payload").
			WithTextCode(core.LeadsErrorBadInput)
	}
	return payload, nil
}

// nodeFields flattens one response node into the provider-native field list.
// Contact fields feed the normalizer's alias table; query details ride along
// into the canonical record's trace block.
func nodeFields(node responseNode) []core.Field {
	fields := make([]core.Field, 0, 8)
	appendField := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fields = append(fields, core.Field{Name: name, Values: []string{value}})
		}
	}
	appendField("name", node.ContactDetail.Name)
	appendField("email", node.ContactDetail.Email)
	appendField("phone_number", node.ContactDetail.Phone)
	appendField("listing_price", node.QueryDetail.ListingPrice)
	appendField("property_name", node.QueryDetail.PropertyName)
	appendField("project_name", node.QueryDetail.ProjectName)
	appendField("verified_status", node.QueryDetail.VerifiedStatus)
	appendField("product_type", node.QueryDetail.ProductID.Type)
	appendField("product_id", node.QueryDetail.ProductID.Value)
	return fields
}

func parseQueryDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
