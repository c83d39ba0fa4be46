package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SentinalMax/MineScan/internal/probe"
)

// ServerDoc is one persisted observation of a Minecraft server.
type ServerDoc struct {
	IP              string    `json:"ip"`
	Port            int       `json:"port"`
	MOTD            string    `json:"motd"`
	Players         int       `json:"players"`
	MaxPlayers      int       `json:"maxPlayers"`
	Protocol        int       `json:"protocol"`
	VersionName     string    `json:"versionName"`
	Favicon         string    `json:"favicon,omitempty"`
	ObservedAt      time.Time `json:"observedAt"`
	VerifiedService string    `json:"verifiedService,omitempty"`
	VerifiedProduct string    `json:"verifiedProduct,omitempty"`
	VerifiedVersion string    `json:"verifiedVersion,omitempty"`
}

// Store is a document-style SQLite-backed persistence layer: the raw
// status JSON is kept alongside a handful of indexed scalar columns so
// the read-only catalog API can filter without deserializing every row.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and runs
// its schema migration. Uses modernc.org/sqlite, a CGo-free driver, so
// the binary stays a single static executable.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS servers (
		ip TEXT NOT NULL,
		port INTEGER NOT NULL,
		motd TEXT NOT NULL DEFAULT '',
		players INTEGER NOT NULL DEFAULT 0,
		max_players INTEGER NOT NULL DEFAULT 0,
		protocol INTEGER NOT NULL DEFAULT 0,
		version_name TEXT NOT NULL DEFAULT '',
		data JSON NOT NULL,
		observed_at DATETIME NOT NULL,
		verified_service TEXT NOT NULL DEFAULT '',
		verified_product TEXT NOT NULL DEFAULT '',
		verified_version TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (ip, port)
	);

	CREATE INDEX IF NOT EXISTS idx_servers_observed_at ON servers(observed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordServer upserts one observation. It satisfies probe.Recorder.
func (s *Store) RecordServer(ctx context.Context, ip string, port int, status *probe.StatusResponse, observedAt time.Time) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	motd := descriptionText(status.Description)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO servers (ip, port, motd, players, max_players, protocol, version_name, data, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ip, port) DO UPDATE SET
			motd = excluded.motd,
			players = excluded.players,
			max_players = excluded.max_players,
			protocol = excluded.protocol,
			version_name = excluded.version_name,
			data = excluded.data,
			observed_at = excluded.observed_at
	`, ip, port, motd, status.Players.Online, status.Players.Max, status.Version.Protocol, status.Version.Name, string(data), observedAt)
	if err != nil {
		return fmt.Errorf("upsert server %s:%d: %w", ip, port, err)
	}
	return nil
}

// List returns every persisted server, most recently observed first.
func (s *Store) List(ctx context.Context) ([]ServerDoc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ip, port, motd, players, max_players, protocol, version_name, observed_at,
			verified_service, verified_product, verified_version
		FROM servers
		ORDER BY observed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	var out []ServerDoc
	for rows.Next() {
		var doc ServerDoc
		if err := rows.Scan(&doc.IP, &doc.Port, &doc.MOTD, &doc.Players, &doc.MaxPlayers, &doc.Protocol, &doc.VersionName, &doc.ObservedAt,
			&doc.VerifiedService, &doc.VerifiedProduct, &doc.VerifiedVersion); err != nil {
			return nil, fmt.Errorf("scan server row: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// UpdateVerification records the result of an optional nmap-based
// corroboration pass (internal/verify) against an already-persisted
// observation. Rows that have not yet been probed are left untouched:
// this is called strictly after RecordServer has inserted the row.
func (s *Store) UpdateVerification(ctx context.Context, ip string, port int, service, product, version string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE servers
		SET verified_service = ?, verified_product = ?, verified_version = ?
		WHERE ip = ? AND port = ?
	`, service, product, version, ip, port)
	if err != nil {
		return fmt.Errorf("update verification %s:%d: %w", ip, port, err)
	}
	return nil
}

// descriptionText extracts a plain-text MOTD from the status
// description field, which the protocol allows to be either a bare
// string or a chat-component object ({"text": "..."}).
func descriptionText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asComponent struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &asComponent); err == nil {
		return asComponent.Text
	}
	return ""
}
