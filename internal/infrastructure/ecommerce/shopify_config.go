package ecommerce

import (
	"errors"
	"fmt"
)

// ShopifyConfig holds configuration for the Shopify Admin REST API.
type ShopifyConfig struct {
	// ShopDomain is the myshopify.com subdomain of the store
	ShopDomain string
	// AccessToken is the Admin API access token
	AccessToken string
	// APIVersion is the Admin API version, e.g. "2024-01"
	APIVersion string
	// APIBaseURL overrides the derived shop URL, used for testing
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// ShopifyDefaultAPIVersion is the Admin API version used when none is set.
const ShopifyDefaultAPIVersion = "2024-01"

// Errors for Shopify configuration
var (
	ErrShopifyConfigMissingDomain = errors.New("shopify: shop domain is required")
	ErrShopifyConfigMissingToken  = errors.New("shopify: access token is required")
)

// NewShopifyConfig creates a Shopify configuration with defaults.
func NewShopifyConfig(shopDomain, accessToken string) *ShopifyConfig {
	return &ShopifyConfig{
		ShopDomain:     shopDomain,
		AccessToken:    accessToken,
		APIVersion:     ShopifyDefaultAPIVersion,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Shopify configuration and fills defaults.
func (c *ShopifyConfig) Validate() error {
	if c.ShopDomain == "" && c.APIBaseURL == "" {
		return ErrShopifyConfigMissingDomain
	}
	if c.AccessToken == "" {
		return ErrShopifyConfigMissingToken
	}
	if c.APIVersion == "" {
		c.APIVersion = ShopifyDefaultAPIVersion
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// BaseURL returns the Admin API root for this shop.
func (c *ShopifyConfig) BaseURL() string {
	if c.APIBaseURL != "" {
		return fmt.Sprintf("%s/admin/api/%s", c.APIBaseURL, c.APIVersion)
	}
	return fmt.Sprintf("https://%s.myshopify.com/admin/api/%s", c.ShopDomain, c.APIVersion)
}
