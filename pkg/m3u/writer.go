// Package m3u writes extended M3U playlists in the dialect DVR clients
// consume: a #EXTM3U header with optional key=value tokens, then
// EXTINF/URL line pairs carrying channel-id, guide, and tvg attributes.
package m3u

import (
	"fmt"
	"io"
	"strings"
)

// ContentType is the MIME type playlists are served with.
const ContentType = "audio/x-mpegurl"

// Entry is one playlist line pair: the EXTINF metadata and its stream
// URL. All entries are live streams (duration -1). Empty attributes are
// omitted from the EXTINF line.
type Entry struct {
	// ChannelID is the client-facing channel identifier (channel-id).
	ChannelID string

	// StationID is the guide-data station identifier
	// (tvc-guide-stationid).
	StationID string

	// TvgID, TvgName, and TvgLogo are the EPG matching attributes.
	TvgID   string
	TvgName string
	TvgLogo string

	// Title is the display title after the attribute list.
	Title string

	// URL is the stream URL.
	URL string
}

// attrEscaper backslash-escapes double quotes inside attribute values.
var attrEscaper = strings.NewReplacer(`"`, `\"`)

// Writer emits one playlist incrementally. The header goes out before the
// first entry, on its own or through WriteEntry.
type Writer struct {
	w             io.Writer
	headerAttrs   []string
	headerWritten bool
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// HeaderAttr adds a raw key=value token to the #EXTM3U line. It must be
// called before the header is written; later calls are ignored.
func (w *Writer) HeaderAttr(key, value string) *Writer {
	if !w.headerWritten {
		w.headerAttrs = append(w.headerAttrs, key+"="+value)
	}
	return w
}

// WriteHeader emits the #EXTM3U line once. WriteEntry calls it on demand,
// so explicit calls only matter for empty playlists.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return nil
	}
	line := "#EXTM3U"
	if len(w.headerAttrs) > 0 {
		line += " " + strings.Join(w.headerAttrs, " ")
	}
	if _, err := io.WriteString(w.w, line+"\n"); err != nil {
		return fmt.Errorf("writing M3U header: %w", err)
	}
	w.headerWritten = true
	return nil
}

// WriteEntry emits the EXTINF line and stream URL for one channel.
func (w *Writer) WriteEntry(entry *Entry) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("#EXTINF:-1")
	for _, attr := range [...]struct{ key, value string }{
		{"channel-id", entry.ChannelID},
		{"tvc-guide-stationid", entry.StationID},
		{"tvg-id", entry.TvgID},
		{"tvg-name", entry.TvgName},
		{"tvg-logo", entry.TvgLogo},
	} {
		if attr.value == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(attr.key)
		b.WriteString(`="`)
		b.WriteString(attrEscaper.Replace(attr.value))
		b.WriteByte('"')
	}
	b.WriteByte(',')
	b.WriteString(entry.Title)
	b.WriteByte('\n')
	b.WriteString(entry.URL)
	b.WriteByte('\n')

	if _, err := io.WriteString(w.w, b.String()); err != nil {
		return fmt.Errorf("writing playlist entry: %w", err)
	}
	return nil
}
