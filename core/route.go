package core

import "strings"

type Channel string

const (
	ChannelCommon   Channel = "common"
	ChannelPersonal Channel = "personal"
)

func (c Channel) Valid() bool {
	return c == ChannelCommon || c == ChannelPersonal
}

// Destinations is an ordered, duplicate free channel set.
type Destinations []Channel

func (d Destinations) Empty() bool {
	return len(d) == 0
}

func (d Destinations) Contains(channel Channel) bool {
	for _, existing := range d {
		if existing == channel {
			return true
		}
	}
	return false
}

func (d Destinations) Strings() []string {
	out := make([]string, 0, len(d))
	for _, channel := range d {
		out = append(out, string(channel))
	}
	return out
}

func (d Destinations) String() string {
	return strings.Join(d.Strings(), ",")
}

type RoutingRule struct {
	TargetUser       string `koanf:"target_user" mapstructure:"target_user" yaml:"target_user" json:"target_user"`
	CommonRepository string `koanf:"common_repository" mapstructure:"common_repository" yaml:"common_repository" json:"common_repository"`
}

// Route matches exactly and case sensitively. Empty rule fields never match.
func (r RoutingRule) Route(actor, repository string) Destinations {
	destinations := Destinations{}
	if r.CommonRepository != "" && repository == r.CommonRepository {
		destinations = append(destinations, ChannelCommon)
	}
	if r.TargetUser != "" && actor == r.TargetUser {
		destinations = append(destinations, ChannelPersonal)
	}
	return destinations
}
