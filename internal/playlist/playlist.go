// Package playlist renders the DVR-facing M3U lineups from the
// configured channel lists.
package playlist

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/pkg/m3u"
)

// OnDemandChannelID is the channel-id of the single on-demand entry.
const OnDemandChannelID = "ondemand_viewer"

// WriteGuide renders the guide-data lineup: one entry per channel
// carrying its station id, pointing at the live stream route.
func WriteGuide(w io.Writer, baseURL string, channels []config.Channel) error {
	mw := m3u.NewWriter(w)
	if err := mw.WriteHeader(); err != nil {
		return err
	}
	for _, ch := range channels {
		err := mw.WriteEntry(&m3u.Entry{
			ChannelID: ch.ID,
			StationID: ch.StationID,
			Title:     titleFor(ch),
			URL:       streamURL(baseURL, ch.ID),
		})
		if err != nil {
			return fmt.Errorf("channel %s: %w", ch.ID, err)
		}
	}
	return nil
}

// WriteEPG renders the EPG lineup with tvg matching attributes. tvg-id
// falls back to the channel id and tvg-name to the display name so
// every entry stays matchable.
func WriteEPG(w io.Writer, baseURL string, channels []config.Channel) error {
	mw := m3u.NewWriter(w)
	if err := mw.WriteHeader(); err != nil {
		return err
	}
	for _, ch := range channels {
		tvgID := ch.TvgID
		if tvgID == "" {
			tvgID = ch.ID
		}
		tvgName := ch.TvgName
		if tvgName == "" {
			tvgName = titleFor(ch)
		}
		err := mw.WriteEntry(&m3u.Entry{
			ChannelID: ch.ID,
			TvgID:     tvgID,
			TvgName:   tvgName,
			TvgLogo:   ch.TvgLogo,
			Title:     titleFor(ch),
			URL:       streamURL(baseURL, ch.ID),
		})
		if err != nil {
			return fmt.Errorf("channel %s: %w", ch.ID, err)
		}
	}
	return nil
}

// WriteOnDemand renders the single-entry on-demand playlist. receivers
// caps concurrent client streams via x-tvh-max-streams.
func WriteOnDemand(w io.Writer, baseURL string, receivers int) error {
	mw := m3u.NewWriter(w)
	mw.HeaderAttr("x-tvh-max-streams", strconv.Itoa(receivers))
	return mw.WriteEntry(&m3u.Entry{
		ChannelID: OnDemandChannelID,
		TvgName:   "On-Demand Stream",
		Title:     "On-Demand Stream",
		URL:       baseURL + "/session/consume",
	})
}

func titleFor(ch config.Channel) string {
	if ch.Name != "" {
		return ch.Name
	}
	return ch.ID
}

func streamURL(baseURL, channelID string) string {
	return baseURL + "/stream/" + url.PathEscape(channelID)
}
