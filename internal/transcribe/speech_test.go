package transcribe

import (
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
)

func TestJoinTranscript(t *testing.T) {
	resp := &speechpb.LongRunningRecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " hello there "}, {Transcript: "ignored"}}},
			nil,
			{Alternatives: nil},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "general kenobi"}}},
		},
	}
	assert.Equal(t, "hello there general kenobi", joinTranscript(resp))
	assert.Equal(t, "", joinTranscript(nil))
}

func TestInferEncoding(t *testing.T) {
	assert.Equal(t, speechpb.RecognitionConfig_FLAC, inferEncoding("", "gs://b/a.flac"))
	assert.Equal(t, speechpb.RecognitionConfig_MP3, inferEncoding("audio/mpeg", "gs://b/a"))
	assert.Equal(t, speechpb.RecognitionConfig_WEBM_OPUS, inferEncoding("video/webm", "gs://b/a"))
	assert.Equal(t, speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, inferEncoding("video/mp4", "gs://b/a.mp4"))
}
