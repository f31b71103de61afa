// Package util provides small helpers shared across components.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a typed entity identifier, e.g. "conv_9f1c...".
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
