package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on spans.
const (
	AttrFaceID        = "avatar.face_id"
	AttrICECandidates = "avatar.ice_candidates"
	AttrICEGathering  = "avatar.ice_gathering_state"
	AttrDataChannel   = "avatar.data_channel"
	AttrAnswerMedia   = "avatar.answer_media"
	AttrAgentProvider = "agent.provider"
	AttrAgentID       = "agent.id"
	AttrSTTProvider   = "stt.provider"
	AttrTTSProvider   = "tts.provider"
	AttrTTSVoice      = "tts.voice"
	AttrTextLength    = "text.length"
	AttrAudioSize     = "audio.size"
	AttrAudioChunks   = "audio.chunks"
	AttrRoomID        = "session.room_id"
	AttrUserID        = "session.user_id"
)

// AvatarAttrs describes the avatar session being negotiated.
func AvatarAttrs(faceID, channel string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrFaceID, faceID),
		attribute.String(AttrDataChannel, channel),
	}
}

// SessionAttrs identifies the conversation.
func SessionAttrs(roomID, userID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRoomID, roomID),
		attribute.String(AttrUserID, userID),
	}
}
