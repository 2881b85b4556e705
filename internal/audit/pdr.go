// Package audit provides PDR (Process Decision Record) writing for hivemind.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/hivemind/internal/models"
)

// Repository persists decision records.
type Repository interface {
	WritePDR(ctx context.Context, action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	repo Repository
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(repo Repository) *PDRWriter {
	return &PDRWriter{repo: repo}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(ctx context.Context, action string, inputs any, outcome, taskID, details string) error {
	_, err := w.repo.WritePDR(ctx, action, HashInputs(inputs), outcome, taskID, details)
	return err
}

// HashInputs creates a SHA256 hash of the JSON encoded inputs.
func HashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
