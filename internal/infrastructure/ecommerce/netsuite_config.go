package ecommerce

import (
	"errors"
	"fmt"
	"strings"
)

// NetSuiteConfig holds configuration for the NetSuite REST record API.
type NetSuiteConfig struct {
	// AccountID is the NetSuite account identifier, e.g. "1234567" or
	// "1234567-sb1" for a sandbox
	AccountID string
	// AccessToken is the OAuth 2.0 bearer token
	AccessToken string
	// APIBaseURL overrides the derived account URL, used for testing
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// Errors for NetSuite configuration
var (
	ErrNetSuiteConfigMissingAccount = errors.New("netsuite: account ID is required")
	ErrNetSuiteConfigMissingToken   = errors.New("netsuite: access token is required")
)

// NewNetSuiteConfig creates a NetSuite configuration with defaults.
func NewNetSuiteConfig(accountID, accessToken string) *NetSuiteConfig {
	return &NetSuiteConfig{
		AccountID:      accountID,
		AccessToken:    accessToken,
		TimeoutSeconds: 30,
	}
}

// Validate validates the NetSuite configuration and fills defaults.
func (c *NetSuiteConfig) Validate() error {
	if c.AccountID == "" && c.APIBaseURL == "" {
		return ErrNetSuiteConfigMissingAccount
	}
	if c.AccessToken == "" {
		return ErrNetSuiteConfigMissingToken
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// BaseURL returns the REST record API root for this account.
func (c *NetSuiteConfig) BaseURL() string {
	if c.APIBaseURL != "" {
		return c.APIBaseURL + "/services/rest/record/v1"
	}
	// Account IDs with sandbox suffixes use a dash in the hostname.
	host := strings.ReplaceAll(strings.ToLower(c.AccountID), "_", "-")
	return fmt.Sprintf("https://%s.suitetalk.api.netsuite.com/services/rest/record/v1", host)
}
