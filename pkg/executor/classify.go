package executor

import (
	"encoding/json"

	"github.com/rhuss/codechat/pkg/api"
)

// resultItem is the subset of a sandbox result item that selects its kind.
type resultItem struct {
	PNG  string `json:"png"`
	JPEG string `json:"jpeg"`
	Text string `json:"text"`
}

// Classify turns one raw sandbox result item into an Artifact. An image
// payload wins over text; anything else, including undecodable items, is
// kept as raw JSON.
func Classify(item json.RawMessage) api.Artifact {
	var ri resultItem
	if err := json.Unmarshal(item, &ri); err != nil {
		return api.RawArtifact(string(item))
	}
	switch {
	case ri.PNG != "":
		return api.ImageArtifact("image/png", ri.PNG)
	case ri.JPEG != "":
		return api.ImageArtifact("image/jpeg", ri.JPEG)
	case ri.Text != "":
		return api.TextArtifact(ri.Text)
	default:
		return api.RawArtifact(string(item))
	}
}

// ClassifyAll classifies items preserving their order.
func ClassifyAll(items []json.RawMessage) []api.Artifact {
	out := make([]api.Artifact, 0, len(items))
	for _, item := range items {
		out = append(out, Classify(item))
	}
	return out
}
