package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultPriority is assigned to receivers that do not declare one.
// Lower values tune first.
const DefaultPriority = 99

// Lineup is the receiver/channel document. Unlike service settings it is
// editable at runtime: the config API replaces it wholesale and the server
// rebuilds the pool from it.
type Lineup struct {
	Receivers    []ReceiverSpec `yaml:"receivers" json:"receivers"`
	Channels     []Channel      `yaml:"channels,omitempty" json:"channels,omitempty"`
	EPGChannels  []Channel      `yaml:"epg_channels,omitempty" json:"epg_channels,omitempty"`
	OnDemandApps []OnDemandApp  `yaml:"ondemand_apps,omitempty" json:"ondemand_apps,omitempty"`
}

// ReceiverSpec describes one physical receiver/encoder pair.
type ReceiverSpec struct {
	// Name is the stable unique identifier used in APIs and logs.
	Name string `yaml:"name" json:"name"`
	// Control is the device-control address (host or host:port).
	Control string `yaml:"control" json:"control"`
	// Source is the HDMI encoder URL emitting MPEG-TS for this receiver.
	Source string `yaml:"source" json:"source"`
	// Priority orders allocation; lower tunes first. Zero means unset
	// and normalizes to DefaultPriority.
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`
	// Mode overrides the global streaming mode for this receiver.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// Channel describes tunable content: which app to launch and how to reach
// the content inside it.
type Channel struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	AppID     string `yaml:"app_id" json:"app_id"`
	ContentID string `yaml:"content_id,omitempty" json:"content_id,omitempty"`
	MediaType string `yaml:"media_type,omitempty" json:"media_type,omitempty"`

	// Plugin selects a registered scripted tuning plugin; PluginData is
	// passed through to it.
	Plugin     string         `yaml:"plugin,omitempty" json:"plugin,omitempty"`
	PluginData map[string]any `yaml:"plugin_data,omitempty" json:"plugin_data,omitempty"`

	// KeySequence is a literal remote-control script. Entries are key
	// names or inline delays written as "wait:SECONDS".
	KeySequence []string `yaml:"key_sequence,omitempty" json:"key_sequence,omitempty"`

	// Confirm sends the configured confirm key after tuning completes.
	Confirm bool `yaml:"confirm,omitempty" json:"confirm,omitempty"`

	// Preroll overrides the global preroll duration when positive.
	Preroll Duration `yaml:"preroll,omitempty" json:"preroll,omitempty"`

	// KeepAlive requests a periodic keypress while the channel is being
	// watched, for apps with idle timeouts.
	KeepAlive *KeepAlive `yaml:"keep_alive,omitempty" json:"keep_alive,omitempty"`

	// Guide metadata. StationID feeds the guide-data playlist; the tvg
	// fields feed the EPG playlist.
	StationID string `yaml:"station_id,omitempty" json:"station_id,omitempty"`
	TvgID     string `yaml:"tvg_id,omitempty" json:"tvg_id,omitempty"`
	TvgName   string `yaml:"tvg_name,omitempty" json:"tvg_name,omitempty"`
	TvgLogo   string `yaml:"tvg_logo,omitempty" json:"tvg_logo,omitempty"`
}

// KeepAlive specifies the periodic keypress for channels that need it.
type KeepAlive struct {
	Key      string   `yaml:"key" json:"key"`
	Interval Duration `yaml:"interval" json:"interval"`
}

// OnDemandApp names an app offered on the preview/commit workflow.
type OnDemandApp struct {
	AppID string `yaml:"app_id" json:"app_id"`
	Name  string `yaml:"name" json:"name"`
}

// LoadLineup reads the lineup document from path. A missing file yields an
// empty lineup rather than an error: the service starts with an empty pool
// and the lineup can be pushed through the config API.
func LoadLineup(path string) (*Lineup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Lineup{}, nil
		}
		return nil, fmt.Errorf("reading lineup file: %w", err)
	}

	var lineup Lineup
	if err := yaml.Unmarshal(data, &lineup); err != nil {
		return nil, fmt.Errorf("parsing lineup file: %w", err)
	}

	if err := lineup.Validate(); err != nil {
		return nil, fmt.Errorf("validating lineup: %w", err)
	}
	lineup.Normalize()

	return &lineup, nil
}

// Save writes the lineup document to path atomically (temp file + rename).
func (l *Lineup) Save(path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshaling lineup: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".lineup-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp lineup file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing lineup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing lineup file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing lineup file: %w", err)
	}
	return nil
}

// Validate checks the lineup document for errors.
func (l *Lineup) Validate() error {
	names := make(map[string]bool, len(l.Receivers))
	for i, r := range l.Receivers {
		if r.Name == "" {
			return fmt.Errorf("receivers[%d]: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("receivers[%d]: duplicate name %q", i, r.Name)
		}
		names[r.Name] = true
		if r.Control == "" {
			return fmt.Errorf("receiver %q: control address is required", r.Name)
		}
		if r.Source == "" {
			return fmt.Errorf("receiver %q: source URL is required", r.Name)
		}
		if r.Priority < 0 {
			return fmt.Errorf("receiver %q: priority must not be negative", r.Name)
		}
		if r.Mode != "" && !ValidMode(r.Mode) {
			return fmt.Errorf("receiver %q: mode must be one of: proxy, remux, reencode", r.Name)
		}
	}

	ids := make(map[string]bool, len(l.Channels)+len(l.EPGChannels))
	for _, list := range [][]Channel{l.Channels, l.EPGChannels} {
		for i, ch := range list {
			if ch.ID == "" {
				return fmt.Errorf("channels[%d]: id is required", i)
			}
			if ids[ch.ID] {
				return fmt.Errorf("channel %q: duplicate id", ch.ID)
			}
			ids[ch.ID] = true
			if ch.AppID == "" {
				return fmt.Errorf("channel %q: app_id is required", ch.ID)
			}
			if ka := ch.KeepAlive; ka != nil {
				if ka.Key == "" {
					return fmt.Errorf("channel %q: keep_alive.key is required", ch.ID)
				}
				if ka.Interval <= 0 {
					return fmt.Errorf("channel %q: keep_alive.interval must be positive", ch.ID)
				}
			}
			if ch.Preroll < 0 {
				return fmt.Errorf("channel %q: preroll must not be negative", ch.ID)
			}
		}
	}

	return nil
}

// Normalize applies defaults the document format leaves implicit and
// orders receivers by priority (stable, so document order breaks ties).
func (l *Lineup) Normalize() {
	for i := range l.Receivers {
		if l.Receivers[i].Priority == 0 {
			l.Receivers[i].Priority = DefaultPriority
		}
	}
	sort.SliceStable(l.Receivers, func(i, j int) bool {
		return l.Receivers[i].Priority < l.Receivers[j].Priority
	})
}

// ChannelByID looks up a channel in either channel list.
func (l *Lineup) ChannelByID(id string) (*Channel, bool) {
	for i := range l.Channels {
		if l.Channels[i].ID == id {
			return &l.Channels[i], true
		}
	}
	for i := range l.EPGChannels {
		if l.EPGChannels[i].ID == id {
			return &l.EPGChannels[i], true
		}
	}
	return nil, false
}
