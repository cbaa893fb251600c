package metalead

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-leads/core"
)

const (
	defaultFetchTimeout    = 10 * time.Second
	maxGraphResponseBytes  = 1 << 20
	leadFieldsSelector     = "created_time,field_data"
	formListSelector       = "id,name,status,locale,leads_count"
	formLeadsPageSizeLimit = "100"
)

// GraphClient performs the authenticated secondary calls against the
// provider's HTTP API: lead field fetch, form listing, and windowed form lead
// listing for manual sync. Every call carries a bounded timeout; a timeout is
// a fetch failure, never a retry loop.
type GraphClient struct {
	transport core.TransportAdapter
	baseURL   string
	timeout   time.Duration
}

func NewGraphClient(transport core.TransportAdapter, cfg core.MetaLeadConfig) (*GraphClient, error) {
	if transport == nil {
		return nil, fmt.Errorf("metalead: transport adapter is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.GraphBaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("metalead: graph base url is required")
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &GraphClient{
		transport: transport,
		baseURL:   baseURL,
		timeout:   timeout,
	}, nil
}

type graphLeadResponse struct {
	ID          string      `json:"id"`
	CreatedTime string      `json:"created_time"`
	FieldData   []fieldData `json:"field_data"`
}

type graphFormListResponse struct {
	Data []graphForm `json:"data"`
}

type graphForm struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Locale     string `json:"locale"`
	LeadsCount int    `json:"leads_count"`
}

type graphFormLeadsResponse struct {
	Data []graphLeadResponse `json:"data"`
}

// FetchLeadFields retrieves the field data for one lead by external id using
// the owning account's access token.
func (c *GraphClient) FetchLeadFields(ctx context.Context, accessToken, leadID string) ([]core.Field, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return nil, fmt.Errorf("metalead: lead id is required")
	}
	var payload graphLeadResponse
	if err := c.get(ctx, "/"+leadID, accessToken, map[string]string{
		"fields": leadFieldsSelector,
	}, &payload); err != nil {
		return nil, err
	}
	fields := convertFieldData(payload.FieldData)
	if len(fields) == 0 {
		return nil, fetchError(fmt.Errorf("metalead: lead %s fetch returned no field data", leadID))
	}
	return fields, nil
}

// ListForms retrieves the lead forms registered on a page.
func (c *GraphClient) ListForms(ctx context.Context, accessToken, pageID string) ([]core.LeadForm, error) {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return nil, fmt.Errorf("metalead: page id is required")
	}
	var payload graphFormListResponse
	if err := c.get(ctx, "/"+pageID+"/leadgen_forms", accessToken, map[string]string{
		"fields": formListSelector,
	}, &payload); err != nil {
		return nil, err
	}
	forms := make([]core.LeadForm, 0, len(payload.Data))
	for _, form := range payload.Data {
		if strings.TrimSpace(form.ID) == "" {
			continue
		}
		forms = append(forms, core.LeadForm{
			ExternalID: strings.TrimSpace(form.ID),
			Name:       strings.TrimSpace(form.Name),
			Status:     strings.TrimSpace(form.Status),
			Locale:     strings.TrimSpace(form.Locale),
			LeadCount:  form.LeadsCount,
		})
	}
	return forms, nil
}

// FormLead is one lead returned by the windowed form listing.
type FormLead struct {
	ExternalID  string
	CreatedTime time.Time
	Fields      []core.Field
}

// ListFormLeads retrieves the leads submitted on one form inside an optional
// time window.
func (c *GraphClient) ListFormLeads(
	ctx context.Context,
	accessToken string,
	formID string,
	since time.Time,
	until time.Time,
) ([]FormLead, error) {
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return nil, fmt.Errorf("metalead: form id is required")
	}
	query := map[string]string{
		"fields": leadFieldsSelector,
		"limit":  formLeadsPageSizeLimit,
	}
	if !since.IsZero() {
		query["from_date"] = fmt.Sprintf("%d", since.Unix())
	}
	if !until.IsZero() {
		query["to_date"] = fmt.Sprintf("%d", until.Unix())
	}
	var payload graphFormLeadsResponse
	if err := c.get(ctx, "/"+formID+"/leads", accessToken, query, &payload); err != nil {
		return nil, err
	}
	leads := make([]FormLead, 0, len(payload.Data))
	for _, item := range payload.Data {
		if strings.TrimSpace(item.ID) == "" {
			continue
		}
		leads = append(leads, FormLead{
			ExternalID:  strings.TrimSpace(item.ID),
			CreatedTime: parseGraphTime(item.CreatedTime),
			Fields:      convertFieldData(item.FieldData),
		})
	}
	return leads, nil
}

func (c *GraphClient) get(
	ctx context.Context,
	path string,
	accessToken string,
	query map[string]string,
	out any,
) error {
	if c == nil || c.transport == nil {
		return fmt.Errorf("metalead: graph client is not configured")
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return fmt.Errorf("metalead: access token is required")
	}
	merged := map[string]string{"access_token": accessToken}
	for key, value := range query {
		merged[key] = value
	}

	resp, err := c.transport.Do(ctx, core.TransportRequest{
		Method:               http.MethodGet,
		URL:                  c.baseURL + path,
		Query:                merged,
		Timeout:              c.timeout,
		MaxResponseBodyBytes: maxGraphResponseBytes,
	})
	if err != nil {
		return fetchError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fetchError(fmt.Errorf("metalead: graph responded %d", resp.StatusCode))
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fetchError(fmt.Errorf("metalead: decode graph response: %w", err))
	}
	return nil
}

func fetchError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "metalead: secondary field fetch failed").
		WithTextCode(core.LeadsErrorFetchFailed)
}

// parseGraphTime accepts the API's ISO 8601 variant with a compact zone
// offset, plus plain RFC 3339.
func parseGraphTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
