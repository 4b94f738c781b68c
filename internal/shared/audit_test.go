package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditLogValidate(t *testing.T) {
	assert.Error(t, AuditLog{}.Validate())
	assert.Error(t, AuditLog{Action: "user.login"}.Validate())
	assert.NoError(t, AuditLog{Action: "user.login", SubjectID: "u-1"}.Validate())
}

func TestAuditLoggerRequiresPool(t *testing.T) {
	var logger *AuditLogger
	assert.Error(t, logger.Record(context.Background(), AuditLog{Action: "user.login", SubjectID: "u-1"}))

	_, err := NewAuditLogger(nil).Recent(context.Background(), "u-1", 5)
	assert.Error(t, err)
}
