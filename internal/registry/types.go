package registry

import (
	"encoding/json"
	"time"
)

// Member references an account in the project registry. URL resolves to the
// member's registry profile; the platform login is only known after
// resolution.
type Member struct {
	Username   string `json:"username"`
	URL        string `json:"url"`
	Expiration string `json:"expiration,omitempty"`
}

// expirationLayouts are the accepted date formats for membership expiry.
var expirationLayouts = []string{"2006-01-02", time.RFC3339}

// Expired reports whether the member's expiration has passed. Members
// without an expiration, or with one that does not parse, never expire.
func (m Member) Expired(now time.Time) bool {
	return dateExpired(m.Expiration, now)
}

func dateExpired(value string, now time.Time) bool {
	if value == "" {
		return false
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Before(now)
		}
	}
	return false
}

// RepoRef is a repository reference attached to a project. Organization and
// Name are derived from the URL during post-processing; references whose URL
// does not parse keep them empty and are skipped.
type RepoRef struct {
	URL          string `json:"url"`
	Organization string `json:"-"`
	Name         string `json:"-"`
}

// Project is one desired-state entry from the project registry.
type Project struct {
	ID           string    `json:"project_id"`
	Name         string    `json:"name"`
	Repos        []RepoRef `json:"github_repos"`
	Contributors []Member  `json:"contributors"`
	Committers   []Member  `json:"committers"`
	ProjectLeads []Member  `json:"project_leads"`

	// Organizations and RepoNames are the distinct sets touched by this
	// project's parseable repos, filled during post-processing.
	Organizations []string `json:"-"`
	RepoNames     []string `json:"-"`
}

// Profile is a registry account profile, carrying the linked platform login.
type Profile struct {
	Name         string `json:"name"`
	GitHubHandle string `json:"github_handle"`
}

// BotIdentity is a bot's account on one hosting platform.
type BotIdentity struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Bot is one bot registry entry: a project plus its automated accounts,
// keyed by platform domain.
type Bot struct {
	ProjectID  string
	Identities map[string]BotIdentity
}

// UnmarshalJSON decodes the registry's flat shape, where platform domains
// sit as top-level keys next to projectId.
func (b *Bot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.Identities = make(map[string]BotIdentity)
	for key, value := range raw {
		if key == "projectId" {
			if err := json.Unmarshal(value, &b.ProjectID); err != nil {
				return err
			}
			continue
		}
		var id BotIdentity
		if err := json.Unmarshal(value, &id); err != nil || id.Username == "" {
			continue
		}
		b.Identities[key] = id
	}
	return nil
}

// BotMap maps a project identifier to the platform usernames of its exempt
// bot accounts. Built once per run and never mutated afterwards.
type BotMap map[string][]string

// BuildBotMap filters raw bot entries down to the given platform key.
func BuildBotMap(bots []Bot, platform string) BotMap {
	m := make(BotMap)
	for _, bot := range bots {
		id, ok := bot.Identities[platform]
		if !ok {
			continue
		}
		m[bot.ProjectID] = append(m[bot.ProjectID], id.Username)
	}
	return m
}
