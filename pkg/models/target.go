package models

import (
	"fmt"
	"strings"
)

// TargetKind distinguishes user handles from hashtags.
type TargetKind string

const (
	TargetUser    TargetKind = "user"
	TargetHashtag TargetKind = "hashtag"
)

// Target is a user handle or hashtag to extract items from. Immutable once
// the job is created.
type Target struct {
	Kind  TargetKind `json:"kind"`
	Value string     `json:"value"`
}

// UserTarget returns a Target for a user handle. A leading "@" is dropped.
func UserTarget(handle string) Target {
	return Target{Kind: TargetUser, Value: strings.TrimPrefix(strings.TrimSpace(handle), "@")}
}

// HashtagTarget returns a Target for a hashtag. A leading "#" is dropped.
func HashtagTarget(tag string) Target {
	return Target{Kind: TargetHashtag, Value: strings.TrimPrefix(strings.TrimSpace(tag), "#")}
}

// Identifier is the synthesized title for records produced from this target.
func (t Target) Identifier() string {
	if t.Kind == TargetHashtag {
		return "#" + t.Value
	}
	return t.Value
}

// Token is the string the target's listing URL is expected to contain.
func (t Target) Token() string {
	return t.Value
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.Value)
}

// Validate checks that the target can be turned into a listing URL.
func (t Target) Validate() error {
	if t.Kind != TargetUser && t.Kind != TargetHashtag {
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	if t.Value == "" {
		return fmt.Errorf("%s target has an empty value", t.Kind)
	}
	if strings.ContainsAny(t.Value, "/?#& ") {
		return fmt.Errorf("%s target %q contains invalid characters", t.Kind, t.Value)
	}
	return nil
}

// TargetsFrom builds the target list for a job: users first, then hashtags,
// each in the order given. Blank entries are skipped.
func TargetsFrom(usernames, hashtags []string) []Target {
	out := make([]Target, 0, len(usernames)+len(hashtags))
	for _, u := range usernames {
		if strings.TrimSpace(u) != "" {
			out = append(out, UserTarget(u))
		}
	}
	for _, h := range hashtags {
		if strings.TrimSpace(h) != "" {
			out = append(out, HashtagTarget(h))
		}
	}
	return out
}
