package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MerchantSettings is the merchant and transaction setup the service starts with.
type MerchantSettings struct {
	MerchantID   string   `yaml:"merchant_id"`
	MerchantName string   `yaml:"merchant_name"`
	Gateway      string   `yaml:"gateway"`
	Environment  string   `yaml:"environment"`
	CurrencyCode string   `yaml:"currency_code"`
	CountryCode  string   `yaml:"country_code"`
	TotalPrice   string   `yaml:"total_price"`
	CardNetworks []string `yaml:"card_networks"`
	AuthMethods  []string `yaml:"auth_methods"`
}

// DefaultMerchantSettings mirrors the values a fresh checkout is built with.
func DefaultMerchantSettings() MerchantSettings {
	return MerchantSettings{
		Gateway:      "example",
		Environment:  "TEST",
		CurrencyCode: "BRL",
		CountryCode:  "BR",
		TotalPrice:   "0.00",
		CardNetworks: []string{"VISA", "MASTERCARD", "ELO", "AMEX"},
		AuthMethods:  []string{"PAN_ONLY", "CRYPTOGRAM_3DS"},
	}
}

// LoadMerchantSettings starts from the defaults, merges the YAML file at path
// (skipped when path is empty) and applies environment overrides last.
func LoadMerchantSettings(path string) (MerchantSettings, error) {
	settings := DefaultMerchantSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return settings, fmt.Errorf("failed to read merchant config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return settings, fmt.Errorf("failed to parse merchant config %s: %w", path, err)
		}
	}

	settings.applyEnv()

	if strings.TrimSpace(settings.MerchantID) == "" {
		return settings, fmt.Errorf("merchant id is required (MERCHANT_ID or merchant_id)")
	}
	if strings.TrimSpace(settings.MerchantName) == "" {
		return settings, fmt.Errorf("merchant name is required (MERCHANT_NAME or merchant_name)")
	}

	return settings, nil
}

func (s *MerchantSettings) applyEnv() {
	s.MerchantID = GetEnv("MERCHANT_ID", s.MerchantID)
	s.MerchantName = GetEnv("MERCHANT_NAME", s.MerchantName)
	s.Gateway = GetEnv("GATEWAY_NAME", s.Gateway)
	s.Environment = GetEnv("PAYMENT_ENVIRONMENT", s.Environment)
	s.CurrencyCode = GetEnv("CURRENCY_CODE", s.CurrencyCode)
	s.CountryCode = GetEnv("COUNTRY_CODE", s.CountryCode)
	s.TotalPrice = GetEnv("TOTAL_PRICE", s.TotalPrice)
	s.CardNetworks = GetListEnv("CARD_NETWORKS", s.CardNetworks)
	s.AuthMethods = GetListEnv("AUTH_METHODS", s.AuthMethods)
}
