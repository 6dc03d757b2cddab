package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GetTenantUploadPath returns (and creates) the upload folder of a tenant.
func GetTenantUploadPath(uploadsRoot, tenantID string) (string, error) {
	path := filepath.Join(uploadsRoot, SanitizeFileName(tenantID))
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return path, nil
}

// UniqueUploadName prefixes the original filename so concurrent uploads never collide.
func UniqueUploadName(original string) string {
	base := SanitizeFileName(filepath.Base(original))
	if base == "" {
		base = "document.pdf"
	}
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.NewString()[:8], base)
}

// SanitizeFileName keeps letters, digits, dot, dash and underscore.
func SanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, name)
}
