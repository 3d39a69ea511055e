package simli

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// SessionDescription is the JSON SDP form used by the API: {"sdp", "type"}.
type SessionDescription struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// MediaKinds lists the media sections of the description in order,
// e.g. ["audio", "video", "application"].
func (d SessionDescription) MediaKinds() ([]string, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(d.SDP)); err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}

	kinds := make([]string, 0, len(parsed.MediaDescriptions))
	for _, m := range parsed.MediaDescriptions {
		kinds = append(kinds, m.MediaName.Media)
	}
	return kinds, nil
}
