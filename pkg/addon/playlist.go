/*
 * debrid-relay re-serves debrid streaming links through a single egress address.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package addon

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/jamesnetherton/m3u"
)

// Playlist converts streams into an m3u playlist. Streams without a url are skipped.
func Playlist(streams []Stream) m3u.Playlist {
	p := m3u.Playlist{Tracks: make([]m3u.Track, 0, len(streams))}
	for _, s := range streams {
		if s.URL == "" {
			continue
		}
		name := firstLine(s.Title)
		if name == "" {
			name = firstLine(s.Name)
		}
		p.Tracks = append(p.Tracks, m3u.Track{
			Name:   name,
			Length: -1,
			URI:    s.URL,
			Tags: []m3u.Tag{
				{Name: "tvg-name", Value: name},
				{Name: "group-title", Value: oneLine(s.Name)},
			},
		})
	}
	return p
}

// MarshalPlaylist writes p as an extended m3u file.
func MarshalPlaylist(into io.Writer, p m3u.Playlist) error {
	if _, err := io.WriteString(into, "#EXTM3U\n"); err != nil {
		return err
	}
	for _, track := range p.Tracks {
		var buffer bytes.Buffer

		buffer.WriteString("#EXTINF:")
		buffer.WriteString(fmt.Sprintf("%d ", track.Length))
		for i := range track.Tags {
			if i == len(track.Tags)-1 {
				buffer.WriteString(fmt.Sprintf("%s=%q", track.Tags[i].Name, track.Tags[i].Value))
				continue
			}
			buffer.WriteString(fmt.Sprintf("%s=%q ", track.Tags[i].Name, track.Tags[i].Value))
		}

		if _, err := fmt.Fprintf(into, "%s, %s\n%s\n", buffer.String(), track.Name, track.URI); err != nil {
			return err
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
