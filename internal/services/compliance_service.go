package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// TokenProvider supplies a bearer token for the compliance API. Implementations
// own refresh and caching; callers just ask for a usable token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ComplianceResult is the external API's verdict on a document.
type ComplianceResult struct {
	Document string `json:"document,omitempty"`
	Status   int    `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Approved reports whether the compliance API accepted the document.
func (r *ComplianceResult) Approved() bool {
	return r.Status == 1
}

type complianceTokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// CachedTokenProvider moves through three states: no token, cached token with
// an expiry, expired. The mutex is held across refresh so only one concurrent
// caller hits the auth endpoint; the rest reuse the result.
type CachedTokenProvider struct {
	mu      sync.Mutex
	client  *http.Client
	authURL string
	apiKey  string

	token  string
	expiry time.Time
}

func NewCachedTokenProvider(client *http.Client, authURL, apiKey string) *CachedTokenProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CachedTokenProvider{client: client, authURL: authURL, apiKey: apiKey}
}

func (p *CachedTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Refresh slightly before the advertised expiry so in-flight requests
	// never carry a token that dies mid-call.
	if p.token != "" && time.Now().Before(p.expiry.Add(-30*time.Second)) {
		return p.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("compliance auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("compliance auth returned status %d", resp.StatusCode)
	}

	var tokenResp complianceTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("compliance auth response invalid: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("compliance auth returned empty token")
	}

	p.token = tokenResp.AccessToken
	p.expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return p.token, nil
}

// ComplianceService validates person documents against the external compliance
// API before registration may proceed.
type ComplianceService struct {
	client      *http.Client
	tokens      TokenProvider
	baseURLCPF  string
	baseURLCNPJ string
}

func NewComplianceService(client *http.Client, tokens TokenProvider) *ComplianceService {
	viper.SetDefault("compliance.base_url_cpf", "https://compliance.example.com/api/v1/cpf/validate")
	viper.SetDefault("compliance.base_url_cnpj", "https://compliance.example.com/api/v1/cnpj/validate")

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ComplianceService{
		client:      client,
		tokens:      tokens,
		baseURLCPF:  viper.GetString("compliance.base_url_cpf"),
		baseURLCNPJ: viper.GetString("compliance.base_url_cnpj"),
	}
}

// ValidateDocument checks a CPF or CNPJ document. Transport and auth failures
// come back as errors; a reachable API that rejects the document comes back as
// a result with Approved() == false.
func (s *ComplianceService) ValidateDocument(ctx context.Context, document, documentType string) (*ComplianceResult, error) {
	var requestURL string
	switch strings.ToLower(documentType) {
	case "cpf":
		requestURL = s.baseURLCPF
	case "cnpj":
		requestURL = s.baseURLCNPJ
	default:
		return nil, fmt.Errorf("invalid document type %q: must be cpf or cnpj", documentType)
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"document": document})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[COMPLIANCE] Request failed for %s: %v", requestURL, err)
		return nil, fmt.Errorf("compliance request failed: %w", err)
	}
	defer resp.Body.Close()

	var result ComplianceResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("compliance response invalid: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("compliance auth rejected: %s", result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("[COMPLIANCE] Non-OK status %d for document validation", resp.StatusCode)
		if result.Reason != "" || result.Message != "" {
			return &result, nil
		}
		return nil, fmt.Errorf("compliance API returned status %d", resp.StatusCode)
	}

	return &result, nil
}
