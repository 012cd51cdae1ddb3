// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

// Meta keys.
const (
	MetaLastTick     = "last_tick"
	MetaRunID        = "run_id"
	MetaEventSeq     = "event_seq"
	MetaScenario     = "scenario"
	MetaLastSavedSeq = "last_saved_event_seq"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS buildings (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		efficiency REAL NOT NULL,
		requires_json TEXT NOT NULL,
		produces_json TEXT NOT NULL,
		resources_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS layers (
		name TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		supported_json TEXT NOT NULL,
		capacity REAL NOT NULL,
		travel_time INTEGER NOT NULL,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		layer TEXT NOT NULL,
		capacity REAL NOT NULL,
		travel_time INTEGER NOT NULL,
		status TEXT NOT NULL,
		attributes_json TEXT NOT NULL,
		in_transit_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		meta_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS stats_history (
		tick INTEGER PRIMARY KEY,
		buildings_active INTEGER NOT NULL,
		buildings_total INTEGER NOT NULL,
		edges_active INTEGER NOT NULL,
		edges_total INTEGER NOT NULL,
		resources_json TEXT NOT NULL,
		in_transit_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// ── Rows ───────────────────────────────────────────────────────────

type buildingRow struct {
	ID            string  `db:"id"`
	Seq           int     `db:"seq"`
	Type          string  `db:"type"`
	Status        string  `db:"status"`
	Priority      int     `db:"priority"`
	Efficiency    float64 `db:"efficiency"`
	RequiresJSON  string  `db:"requires_json"`
	ProducesJSON  string  `db:"produces_json"`
	ResourcesJSON string  `db:"resources_json"`
}

type layerRow struct {
	Name          string  `db:"name"`
	Seq           int     `db:"seq"`
	SupportedJSON string  `db:"supported_json"`
	Capacity      float64 `db:"capacity"`
	TravelTime    int     `db:"travel_time"`
	Status        string  `db:"status"`
}

type edgeRow struct {
	ID             int     `db:"id"`
	FromID         string  `db:"from_id"`
	ToID           string  `db:"to_id"`
	Layer          string  `db:"layer"`
	Capacity       float64 `db:"capacity"`
	TravelTime     int     `db:"travel_time"`
	Status         string  `db:"status"`
	AttributesJSON string  `db:"attributes_json"`
	InTransitJSON  string  `db:"in_transit_json"`
}

// edgeExtras holds the attributes without a column of their own.
type edgeExtras struct {
	OriginalCapacity *float64 `json:"original_capacity,omitempty"`
}

type eventRow struct {
	Seq         uint64 `db:"seq"`
	Tick        uint64 `db:"tick"`
	Description string `db:"description"`
	Category    string `db:"category"`
	MetaJSON    string `db:"meta_json"`
}

// StatsRow is one persisted tick summary.
type StatsRow struct {
	Tick            uint64             `db:"tick" json:"tick"`
	BuildingsActive int                `db:"buildings_active" json:"buildings_active"`
	BuildingsTotal  int                `db:"buildings_total" json:"buildings_total"`
	EdgesActive     int                `db:"edges_active" json:"edges_active"`
	EdgesTotal      int                `db:"edges_total" json:"edges_total"`
	ResourcesJSON   string             `db:"resources_json" json:"-"`
	InTransitJSON   string             `db:"in_transit_json" json:"-"`
	Resources       map[string]float64 `db:"-" json:"resources"`
	InTransit       map[string]float64 `db:"-" json:"in_transit"`
}

func ledgerJSON(l resource.Ledger) string {
	b, _ := json.Marshal(l.Names())
	return string(b)
}

func parseLedger(s string) (resource.Ledger, error) {
	var m map[string]float64
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return resource.FromNames(m)
}

// ── World state ────────────────────────────────────────────────────

// SaveWorldState performs a full save of the world and appends events
// emitted since the previous save.
func (db *DB) SaveWorldState(w *engine.World) error {
	st := w.State()
	slog.Info("saving world state", "tick", st.Tick, "buildings", len(st.Buildings), "edges", len(st.Edges))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveBuildings(tx, st.Buildings); err != nil {
		return fmt.Errorf("save buildings: %w", err)
	}
	if err := saveLayers(tx, st.Layers); err != nil {
		return fmt.Errorf("save layers: %w", err)
	}
	if err := saveEdges(tx, st.Edges); err != nil {
		return fmt.Errorf("save edges: %w", err)
	}

	prevRun, err := getMetaString(tx, MetaRunID)
	if err != nil {
		return fmt.Errorf("read meta: %w", err)
	}
	if prevRun != "" && prevRun != st.RunID {
		slog.Warn("saved history belongs to another run, clearing it", "previous_run", prevRun, "run_id", st.RunID)
		if err := resetRun(tx, st.RunID); err != nil {
			return fmt.Errorf("reset run: %w", err)
		}
	}

	lastSaved, err := getMetaUint(tx, MetaLastSavedSeq)
	if err != nil {
		return fmt.Errorf("read meta: %w", err)
	}
	if err := insertEvents(tx, w.EventsAfter(lastSaved)); err != nil {
		return fmt.Errorf("save events: %w", err)
	}

	meta := map[string]string{
		MetaLastTick:     strconv.FormatUint(st.Tick, 10),
		MetaRunID:        st.RunID,
		MetaEventSeq:     strconv.FormatUint(st.EventSeq, 10),
		MetaLastSavedSeq: strconv.FormatUint(st.EventSeq, 10),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world state saved", "tick", st.Tick)
	return nil
}

func saveBuildings(tx *sqlx.Tx, list []*building.Building) error {
	if _, err := tx.Exec("DELETE FROM buildings"); err != nil {
		return err
	}
	stmt, err := tx.Preparex(`INSERT INTO buildings
		(id, seq, type, status, priority, efficiency, requires_json, produces_json, resources_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, b := range list {
		_, err := stmt.Exec(
			b.ID, i, b.Kind.String(), string(b.Status), b.Priority, b.Efficiency,
			ledgerJSON(b.Requires), ledgerJSON(b.Produces), ledgerJSON(b.Resources),
		)
		if err != nil {
			return fmt.Errorf("insert building %s: %w", b.ID, err)
		}
	}
	return nil
}

func saveLayers(tx *sqlx.Tx, list []*network.Layer) error {
	if _, err := tx.Exec("DELETE FROM layers"); err != nil {
		return err
	}
	for i, l := range list {
		supported, _ := json.Marshal(l.Supported)
		_, err := tx.Exec(`INSERT INTO layers (name, seq, supported_json, capacity, travel_time, status)
			VALUES (?, ?, ?, ?, ?, ?)`,
			l.Name, i, string(supported), l.Defaults.Capacity, l.Defaults.TravelTime, string(l.Defaults.Status),
		)
		if err != nil {
			return fmt.Errorf("insert layer %s: %w", l.Name, err)
		}
	}
	return nil
}

func saveEdges(tx *sqlx.Tx, list []*network.Edge) error {
	if _, err := tx.Exec("DELETE FROM edges"); err != nil {
		return err
	}
	stmt, err := tx.Preparex(`INSERT INTO edges
		(id, from_id, to_id, layer, capacity, travel_time, status, attributes_json, in_transit_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range list {
		extras, _ := json.Marshal(edgeExtras{OriginalCapacity: e.Attributes.OriginalCapacity})
		cargo, err := json.Marshal(e.InTransit)
		if err != nil {
			return fmt.Errorf("encode cargo on edge %d: %w", e.ID, err)
		}
		_, err = stmt.Exec(
			e.ID, e.From, e.To, e.Attributes.Layer, e.Attributes.Capacity,
			e.Attributes.TravelTime, string(e.Attributes.Status), string(extras), string(cargo),
		)
		if err != nil {
			return fmt.Errorf("insert edge %d: %w", e.ID, err)
		}
	}
	return nil
}

// HasWorldState reports whether a saved world exists.
func (db *DB) HasWorldState() (bool, error) {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM buildings"); err != nil {
		return false, err
	}
	return n > 0, nil
}

// LoadWorld reconstructs the saved world.
func (db *DB) LoadWorld(opts engine.Options) (*engine.World, error) {
	var st engine.State
	var err error

	if st.Buildings, err = db.loadBuildings(); err != nil {
		return nil, fmt.Errorf("load buildings: %w", err)
	}
	if st.Layers, err = db.loadLayers(); err != nil {
		return nil, fmt.Errorf("load layers: %w", err)
	}
	if st.Edges, err = db.loadEdges(); err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	if st.Tick, err = getMetaUint(db.conn, MetaLastTick); err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	if st.EventSeq, err = getMetaUint(db.conn, MetaEventSeq); err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	if st.RunID, err = db.GetMeta(MetaRunID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load meta: %w", err)
	}

	w, err := engine.FromState(st, opts)
	if err != nil {
		return nil, fmt.Errorf("rebuild world: %w", err)
	}
	slog.Info("world state loaded", "tick", st.Tick, "buildings", len(st.Buildings), "edges", len(st.Edges))
	return w, nil
}

func (db *DB) loadBuildings() ([]*building.Building, error) {
	var rows []buildingRow
	if err := db.conn.Select(&rows, "SELECT * FROM buildings ORDER BY seq"); err != nil {
		return nil, err
	}

	out := make([]*building.Building, 0, len(rows))
	for _, r := range rows {
		kind, ok := building.ParseKind(r.Type)
		if !ok {
			return nil, fmt.Errorf("building %s: unknown type %q", r.ID, r.Type)
		}
		status, ok := building.ParseStatus(r.Status)
		if !ok {
			return nil, fmt.Errorf("building %s: unknown status %q", r.ID, r.Status)
		}
		b := &building.Building{
			ID:         r.ID,
			Kind:       kind,
			Priority:   r.Priority,
			Status:     status,
			Efficiency: r.Efficiency,
		}
		var err error
		if b.Requires, err = parseLedger(r.RequiresJSON); err != nil {
			return nil, fmt.Errorf("building %s requires: %w", r.ID, err)
		}
		if b.Produces, err = parseLedger(r.ProducesJSON); err != nil {
			return nil, fmt.Errorf("building %s produces: %w", r.ID, err)
		}
		if b.Resources, err = parseLedger(r.ResourcesJSON); err != nil {
			return nil, fmt.Errorf("building %s resources: %w", r.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (db *DB) loadLayers() ([]*network.Layer, error) {
	var rows []layerRow
	if err := db.conn.Select(&rows, "SELECT * FROM layers ORDER BY seq"); err != nil {
		return nil, err
	}

	out := make([]*network.Layer, 0, len(rows))
	for _, r := range rows {
		var supported []resource.Type
		if err := json.Unmarshal([]byte(r.SupportedJSON), &supported); err != nil {
			return nil, fmt.Errorf("layer %s: %w", r.Name, err)
		}
		status, ok := network.ParseStatus(r.Status)
		if !ok {
			return nil, fmt.Errorf("layer %s: unknown status %q", r.Name, r.Status)
		}
		out = append(out, network.NewLayer(r.Name, supported, network.Defaults{
			Capacity:   r.Capacity,
			TravelTime: r.TravelTime,
			Status:     status,
		}))
	}
	return out, nil
}

func (db *DB) loadEdges() ([]*network.Edge, error) {
	var rows []edgeRow
	if err := db.conn.Select(&rows, "SELECT * FROM edges ORDER BY id"); err != nil {
		return nil, err
	}

	out := make([]*network.Edge, 0, len(rows))
	for _, r := range rows {
		var extras edgeExtras
		if err := json.Unmarshal([]byte(r.AttributesJSON), &extras); err != nil {
			return nil, fmt.Errorf("edge %d attributes: %w", r.ID, err)
		}
		e, err := network.NewEdge(r.ID, r.FromID, r.ToID, network.Attributes{
			Capacity:         r.Capacity,
			TravelTime:       r.TravelTime,
			Status:           network.Status(r.Status),
			Layer:            r.Layer,
			OriginalCapacity: extras.OriginalCapacity,
		})
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.InTransitJSON), &e.InTransit); err != nil {
			return nil, fmt.Errorf("edge %d cargo: %w", r.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ── Events ─────────────────────────────────────────────────────────

func insertEvents(tx *sqlx.Tx, events []engine.Event) error {
	for _, e := range events {
		meta, _ := json.Marshal(e.Meta)
		_, err := tx.Exec(
			"INSERT INTO events (seq, tick, description, category, meta_json) VALUES (?, ?, ?, ?, ?)",
			e.Seq, e.Tick, e.Description, e.Category, string(meta),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertEvents(tx, events); err != nil {
		return err
	}
	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT seq, tick, description, category, meta_json FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		e := engine.Event{Seq: r.Seq, Tick: r.Tick, Description: r.Description, Category: r.Category}
		if r.MetaJSON != "" && r.MetaJSON != "null" {
			_ = json.Unmarshal([]byte(r.MetaJSON), &e.Meta)
		}
		events = append(events, e)
	}
	return events, nil
}

// ── Stats history ──────────────────────────────────────────────────

// SaveStats records one tick summary. Saving the same tick twice replaces it.
func (db *DB) SaveStats(s engine.Summary) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO stats_history
		(tick, buildings_active, buildings_total, edges_active, edges_total, resources_json, in_transit_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Tick, s.BuildingsActive, s.BuildingsTotal, s.EdgesActive, s.EdgesTotal,
		ledgerJSON(s.Resources), ledgerJSON(s.InTransit),
	)
	return err
}

// LoadStatsHistory returns summaries with from <= tick <= to, oldest first.
// A zero to means no upper bound.
func (db *DB) LoadStatsHistory(from, to uint64, limit int) ([]StatsRow, error) {
	if to == 0 {
		to = ^uint64(0) >> 1
	}
	if limit <= 0 {
		limit = 1000
	}

	var rows []StatsRow
	err := db.conn.Select(&rows,
		`SELECT * FROM stats_history WHERE tick >= ? AND tick <= ? ORDER BY tick ASC LIMIT ?`,
		from, to, limit,
	)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		_ = json.Unmarshal([]byte(rows[i].ResourcesJSON), &rows[i].Resources)
		_ = json.Unmarshal([]byte(rows[i].InTransitJSON), &rows[i].InTransit)
	}
	return rows, nil
}

// ── Meta ───────────────────────────────────────────────────────────

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// getMetaString reads a meta value; a missing key reads as "".
func getMetaString(q sqlx.Queryer, key string) (string, error) {
	var value string
	err := sqlx.Get(q, &value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// getMetaUint reads a numeric meta value; a missing key reads as zero.
func getMetaUint(q sqlx.Queryer, key string) (uint64, error) {
	value, err := getMetaString(q, key)
	if err != nil || value == "" {
		return 0, err
	}
	return strconv.ParseUint(value, 10, 64)
}

// ── Runs ───────────────────────────────────────────────────────────

// BeginRun makes runID the database's current run. Events and stats
// history left by any earlier run are deleted.
func (db *DB) BeginRun(runID string) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := resetRun(tx, runID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run started", "run_id", runID)
	return nil
}

func resetRun(tx *sqlx.Tx, runID string) error {
	for _, q := range []string{
		"DELETE FROM events",
		"DELETE FROM stats_history",
	} {
		if _, err := tx.Exec(q); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("DELETE FROM world_meta WHERE key IN (?, ?)", MetaLastSavedSeq, MetaEventSeq); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", MetaRunID, runID)
	return err
}
