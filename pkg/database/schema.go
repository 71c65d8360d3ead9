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

package database

import (
	"fmt"

	"github.com/lucasduport/debrid-relay/pkg/utils"
)

// initSchema creates database tables if they don't exist
func (m *DBManager) initSchema() error {
	utils.InfoLog("Initializing database schema")

	if m == nil || m.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if _, err := m.db.Exec(`
        CREATE TABLE IF NOT EXISTS relay_history (
            id SERIAL PRIMARY KEY,
            request_id TEXT NOT NULL,
            content_key TEXT NOT NULL,
            cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
            retried BOOLEAN NOT NULL DEFAULT FALSE,
            status INTEGER NOT NULL,
            bytes BIGINT NOT NULL DEFAULT 0,
            duration_ms BIGINT NOT NULL DEFAULT 0,
            client_ip TEXT,
            user_agent TEXT,
            started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )
    `); err != nil {
		utils.ErrorLog("Failed to create relay_history table: %v", err)
		return fmt.Errorf("failed to create relay_history table: %w", err)
	}

	if _, err := m.db.Exec(`
        CREATE INDEX IF NOT EXISTS relay_history_started_at_idx ON relay_history (started_at)
    `); err != nil {
		utils.ErrorLog("Failed to create relay_history index: %v", err)
		return fmt.Errorf("failed to create relay_history index: %w", err)
	}

	utils.InfoLog("Database schema initialized successfully")
	return nil
}
