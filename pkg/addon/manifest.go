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

// Manifest is the Stremio addon manifest served at /manifest.json.
type Manifest struct {
	ID          string        `json:"id"`
	Version     string        `json:"version"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Types       []string      `json:"types"`
	Resources   []string      `json:"resources"`
	Catalogs    []interface{} `json:"catalogs"`
	IDPrefixes  []string      `json:"idPrefixes"`
}

// DefaultManifest describes a stream-only addon for IMDb movies and series.
func DefaultManifest() Manifest {
	return Manifest{
		ID:          "org.custom.torrentio-debrid-proxy",
		Version:     "1.0.0",
		Name:        "Torrentio Debrid Proxy",
		Description: "Streams via Torrentio with Real-Debrid, proxied through your own server.",
		Types:       []string{"movie", "series"},
		Resources:   []string{"stream"},
		Catalogs:    []interface{}{},
		IDPrefixes:  []string{"tt"},
	}
}
