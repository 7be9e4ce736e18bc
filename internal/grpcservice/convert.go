package grpcservice

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"go.klb.dev/popstash/internal/capture"
	"go.klb.dev/popstash/internal/history"
)

// Prompt is the wire form of a capture.Prompt.
type Prompt struct {
	ID                string    `json:"id"`
	Trigger           string    `json:"trigger"`
	Text              string    `json:"text"`
	Stage             string    `json:"stage"`
	ReadOnly          bool      `json:"readOnly,omitempty"`
	FromHistory       bool      `json:"fromHistory,omitempty"`
	ItemID            string    `json:"itemId,omitempty"`
	SourceAppName     string    `json:"sourceAppName,omitempty"`
	SourceAppBundleID string    `json:"sourceAppBundleID,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Item is the wire form of a history.Item. Image bytes are fetched
// separately through Content.
type Item struct {
	ID                    string    `json:"id"`
	Kind                  string    `json:"kind"`
	Preview               string    `json:"preview"`
	Size                  int       `json:"size"`
	IsPinned              bool      `json:"isPinned"`
	DateAdded             time.Time `json:"dateAdded"`
	PinnedAt              time.Time `json:"pinnedAt,omitzero"`
	UnpinnedAt            time.Time `json:"unpinnedAt,omitzero"`
	SourceAppName         string    `json:"sourceAppName,omitempty"`
	SourceAppBundleID     string    `json:"sourceAppBundleID,omitempty"`
	OriginalSourceAppName string    `json:"originalSourceAppName,omitempty"`
}

// Status describes the running daemon.
type Status struct {
	Version     string    `json:"version"`
	Clipboard   string    `json:"clipboard"`
	Desktop     string    `json:"desktop"`
	HistoryFile string    `json:"historyFile"`
	Encrypted   bool      `json:"encrypted"`
	Items       int       `json:"items"`
	LastAddedID string    `json:"lastAddedId,omitempty"`
	State       string    `json:"state"`
	PendingID   string    `json:"pendingId,omitempty"`
	Watchers    int       `json:"watchers"`
	StartedAt   time.Time `json:"startedAt"`
}

func promptOf(p capture.Prompt) Prompt {
	return Prompt{
		ID:                p.ID,
		Trigger:           p.Trigger.String(),
		Text:              p.Text,
		Stage:             string(p.Stage),
		ReadOnly:          p.ReadOnly,
		FromHistory:       p.FromHistory,
		ItemID:            p.ItemID,
		SourceAppName:     p.Source.Name,
		SourceAppBundleID: p.Source.BundleID,
		CreatedAt:         p.CreatedAt,
	}
}

func itemOf(it history.Item) Item {
	return Item{
		ID:                    it.ID,
		Kind:                  it.Content.Kind().String(),
		Preview:               it.Preview(),
		Size:                  it.Content.Size(),
		IsPinned:              it.IsPinned,
		DateAdded:             it.DateAdded,
		PinnedAt:              it.PinnedAt,
		UnpinnedAt:            it.UnpinnedAt,
		SourceAppName:         it.Source.Name,
		SourceAppBundleID:     it.Source.BundleID,
		OriginalSourceAppName: it.OriginalSource.Name,
	}
}

// toStruct converts a JSON-tagged value to a structpb.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	var m map[string]any
	if err := roundTrip(v, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// toList converts a JSON-tagged slice to a structpb.ListValue.
func toList(v any) (*structpb.ListValue, error) {
	var l []any
	if err := roundTrip(v, &l); err != nil {
		return nil, err
	}
	if l == nil {
		l = []any{}
	}
	return structpb.NewList(l)
}

// decode unpacks a well-known JSON message into a JSON-tagged value.
func decode(m proto.Message, v any) error {
	data, err := protojson.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

func roundTrip(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %T: %w", in, err)
	}
	return json.Unmarshal(data, out)
}
