package cli

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParseKindOnly(t *testing.T) {
	for _, arg := range []string{"job", "jobs", "image", "images", "instance", "instances"} {
		kind, id, err := parseAndValidateKindId(arg)
		assert.NoError(t, err, arg)
		assert.Equal(t, singular(arg), kind)
		assert.Nil(t, id)
	}
}

func TestParseKindWithId(t *testing.T) {
	jobID := uuid.New()

	kind, id, err := parseAndValidateKindId("jobs/" + jobID.String())
	assert.NoError(t, err)
	assert.Equal(t, JobKind, kind)
	assert.NotNil(t, id)
	assert.Equal(t, jobID, *id)
}

func TestParseRejectsUnknownKind(t *testing.T) {
	_, _, err := parseAndValidateKindId("volumes")
	assert.Error(t, err)
}

func TestParseRejectsMalformedId(t *testing.T) {
	_, _, err := parseAndValidateKindId("jobs/not-a-uuid")
	assert.Error(t, err)
}
