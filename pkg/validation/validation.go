package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxIdentityLength = 128
	MaxTitleLength    = 200
	MaxCategoryLength = 64
	MaxAllowedViewers = 5000
)

var (
	// IdentityRegex allows the characters identity providers commonly emit.
	IdentityRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@:+-]+$`)

	BroadcastIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateIdentity validates an identity claimed at register_identity or
// named as a relay target.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}
	if len(identity) > MaxIdentityLength {
		return fmt.Errorf("identity is too long (max %d characters)", MaxIdentityLength)
	}
	if !IdentityRegex.MatchString(identity) {
		return fmt.Errorf("identity contains invalid characters")
	}
	return nil
}

func ValidateBroadcastID(id string) error {
	if id == "" {
		return fmt.Errorf("broadcast ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("broadcast ID is too long (max 100 characters)")
	}
	if !BroadcastIDRegex.MatchString(id) {
		return fmt.Errorf("invalid broadcast ID format")
	}
	return nil
}

// ValidateTitle checks length and encoding only; emptiness is a registry rule.
func ValidateTitle(title string) error {
	if !utf8.ValidString(title) {
		return fmt.Errorf("title contains invalid characters")
	}
	return ValidateStringLength(strings.TrimSpace(title), 0, MaxTitleLength, "title")
}

func ValidateCategory(category string) error {
	if !utf8.ValidString(category) {
		return fmt.Errorf("category contains invalid characters")
	}
	return ValidateStringLength(strings.TrimSpace(category), 0, MaxCategoryLength, "category")
}

func ValidateAllowedViewers(viewers []string) error {
	if len(viewers) > MaxAllowedViewers {
		return fmt.Errorf("allowed_viewers is too long (max %d entries)", MaxAllowedViewers)
	}
	for _, v := range viewers {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if err := ValidateIdentity(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("allowed_viewers: %w", err)
		}
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
