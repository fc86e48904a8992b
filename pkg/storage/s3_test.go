package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscriptKey(t *testing.T) {
	assert.Equal(t, "transcripts/room-1.json", TranscriptKey("room-1"))
	assert.Equal(t, "transcripts/evil.json", TranscriptKey("../../evil"))
}

func TestS3ConfigEnabled(t *testing.T) {
	assert.False(t, S3Config{}.Enabled())
	assert.False(t, S3Config{Region: "us-east-1"}.Enabled())
	assert.True(t, S3Config{Region: "us-east-1", TranscriptsBucket: "t"}.Enabled())
}
