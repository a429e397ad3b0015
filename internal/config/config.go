// Package config loads and validates the server's HCL configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/tablestakes/cardroom/internal/economy"
	"github.com/tablestakes/cardroom/internal/room"
	"github.com/tablestakes/cardroom/internal/session"
	"github.com/tablestakes/cardroom/internal/syncer"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerSettings  `hcl:"server,block"`
	Session SessionSettings `hcl:"session,block"`
	Sync    SyncSettings    `hcl:"sync,block"`
	Rooms   []RoomSettings  `hcl:"room,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// SessionSettings tunes the session manager. Durations use Go syntax,
// e.g. "30s".
type SessionSettings struct {
	HeartbeatTimeout    string `hcl:"heartbeat_timeout,optional"`
	MaxMissedHeartbeats int    `hcl:"max_missed_heartbeats,optional"`
	DisconnectGrace     string `hcl:"disconnect_grace,optional"`
	SessionTimeout      string `hcl:"session_timeout,optional"`
}

// SyncSettings tunes the snapshot and diff engine.
type SyncSettings struct {
	SnapshotEvery int `hcl:"snapshot_every,optional"`
	MaxHistory    int `hcl:"max_history,optional"`
}

// RoomSettings defines one room and its tables.
type RoomSettings struct {
	Name            string        `hcl:"name,label"`
	SmallBlind      int64         `hcl:"small_blind"`
	BigBlind        int64         `hcl:"big_blind"`
	BuyInMin        int64         `hcl:"buy_in_min,optional"`
	BuyInMax        int64         `hcl:"buy_in_max,optional"`
	MaxSeats        int           `hcl:"max_seats,optional"`
	TableCount      int           `hcl:"table_count,optional"`
	MaxMembers      int           `hcl:"max_members,optional"`
	ActionTimeout   string        `hcl:"action_timeout,optional"`
	DisconnectGrace string        `hcl:"disconnect_grace,optional"`
	AutoStart       bool          `hcl:"auto_start,optional"`
	AutoStartDelay  string        `hcl:"auto_start_delay,optional"`
	Rake            *RakeSettings `hcl:"rake,block"`
}

// RakeSettings defines a room's rake policy.
type RakeSettings struct {
	Policy             string `hcl:"policy,optional"` // standard, tiered, street, zero
	Percentage         int64  `hcl:"percentage,optional"`
	Cap                int64  `hcl:"cap,optional"`
	NoFlopNoRake       bool   `hcl:"no_flop_no_rake,optional"`
	ExcludeUncontested bool   `hcl:"exclude_uncontested,optional"`
	RequiredStreet     string `hcl:"required_street,optional"`
}

// Default returns the configuration used when no file is present: one 5/10
// six-max room with a 5% rake capped at 3.
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Session: SessionSettings{
			HeartbeatTimeout:    "30s",
			MaxMissedHeartbeats: 3,
			DisconnectGrace:     "60s",
			SessionTimeout:      "24h",
		},
		Sync: SyncSettings{
			SnapshotEvery: 10,
			MaxHistory:    32,
		},
		Rooms: []RoomSettings{
			{
				Name:            "main",
				SmallBlind:      5,
				BigBlind:        10,
				BuyInMin:        200,
				BuyInMax:        1000,
				MaxSeats:        6,
				TableCount:      1,
				MaxMembers:      60,
				ActionTimeout:   "30s",
				DisconnectGrace: "60s",
				AutoStart:       true,
				AutoStartDelay:  "3s",
				Rake: &RakeSettings{
					Policy:       "standard",
					Percentage:   5,
					Cap:          3,
					NoFlopNoRake: true,
				},
			},
		},
	}
}

// Load reads configuration from an HCL file, falling back to Default when
// the file does not exist.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}

	if c.Session.HeartbeatTimeout == "" {
		c.Session.HeartbeatTimeout = def.Session.HeartbeatTimeout
	}
	if c.Session.MaxMissedHeartbeats == 0 {
		c.Session.MaxMissedHeartbeats = def.Session.MaxMissedHeartbeats
	}
	if c.Session.DisconnectGrace == "" {
		c.Session.DisconnectGrace = def.Session.DisconnectGrace
	}
	if c.Session.SessionTimeout == "" {
		c.Session.SessionTimeout = def.Session.SessionTimeout
	}

	if c.Sync.SnapshotEvery == 0 {
		c.Sync.SnapshotEvery = def.Sync.SnapshotEvery
	}
	if c.Sync.MaxHistory == 0 {
		c.Sync.MaxHistory = def.Sync.MaxHistory
	}

	if len(c.Rooms) == 0 {
		c.Rooms = def.Rooms
		return
	}
	for i := range c.Rooms {
		r := &c.Rooms[i]
		if r.BuyInMin == 0 {
			r.BuyInMin = r.BigBlind * 20
		}
		if r.BuyInMax == 0 {
			r.BuyInMax = r.BigBlind * 100
		}
		if r.MaxSeats == 0 {
			r.MaxSeats = 6
		}
		if r.TableCount == 0 {
			r.TableCount = 1
		}
		if r.MaxMembers == 0 {
			r.MaxMembers = r.MaxSeats * r.TableCount * 10
		}
		if r.ActionTimeout == "" {
			r.ActionTimeout = "30s"
		}
		if r.DisconnectGrace == "" {
			r.DisconnectGrace = "60s"
		}
		if r.AutoStartDelay == "" {
			r.AutoStartDelay = "3s"
		}
		if r.Rake == nil {
			r.Rake = &RakeSettings{Policy: "zero"}
		}
		if r.Rake.Policy == "" {
			r.Rake.Policy = "standard"
		}
	}
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if _, err := parseDurations(
		c.Session.HeartbeatTimeout, c.Session.DisconnectGrace, c.Session.SessionTimeout,
	); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if len(c.Rooms) == 0 {
		return fmt.Errorf("at least one room must be configured")
	}

	seen := make(map[string]bool)
	for _, r := range c.Rooms {
		if seen[r.Name] {
			return fmt.Errorf("room %s: duplicate name", r.Name)
		}
		seen[r.Name] = true
		if r.SmallBlind <= 0 {
			return fmt.Errorf("room %s: small blind must be positive", r.Name)
		}
		if r.BigBlind <= r.SmallBlind {
			return fmt.Errorf("room %s: big blind must be greater than small blind", r.Name)
		}
		if r.MaxSeats < 2 || r.MaxSeats > 10 {
			return fmt.Errorf("room %s: max seats must be between 2 and 10", r.Name)
		}
		if r.BuyInMin >= r.BuyInMax {
			return fmt.Errorf("room %s: buy-in minimum must be less than maximum", r.Name)
		}
		if r.BuyInMin < r.BigBlind {
			return fmt.Errorf("room %s: buy-in minimum must cover the big blind", r.Name)
		}
		if _, err := parseDurations(r.ActionTimeout, r.DisconnectGrace, r.AutoStartDelay); err != nil {
			return fmt.Errorf("room %s: %w", r.Name, err)
		}
		switch r.Rake.Policy {
		case "standard", "tiered", "street", "zero":
		default:
			return fmt.Errorf("room %s: invalid rake policy %s", r.Name, r.Rake.Policy)
		}
		if r.Rake.Policy != "zero" && (r.Rake.Percentage < 0 || r.Rake.Percentage > 100) {
			return fmt.Errorf("room %s: rake percentage must be between 0 and 100", r.Name)
		}
		if r.Rake.Policy == "street" && r.Rake.RequiredStreet == "" {
			return fmt.Errorf("room %s: street rake policy requires required_street", r.Name)
		}
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RoomByName returns one room's settings.
func (c *Config) RoomByName(name string) *RoomSettings {
	for i := range c.Rooms {
		if c.Rooms[i].Name == name {
			return &c.Rooms[i]
		}
	}
	return nil
}

// SessionConfig converts to the session manager's config. Call Validate
// first; bad durations fall back to defaults here.
func (c *Config) SessionConfig() session.Config {
	out := session.DefaultConfig()
	if d, err := time.ParseDuration(c.Session.HeartbeatTimeout); err == nil {
		out.HeartbeatTimeout = d
	}
	if c.Session.MaxMissedHeartbeats > 0 {
		out.MaxMissedHeartbeats = c.Session.MaxMissedHeartbeats
	}
	if d, err := time.ParseDuration(c.Session.DisconnectGrace); err == nil {
		out.DisconnectGrace = d
	}
	if d, err := time.ParseDuration(c.Session.SessionTimeout); err == nil {
		out.SessionTimeout = d
	}
	return out
}

// SyncConfig converts to the sync engine's config.
func (c *Config) SyncConfig() syncer.Config {
	return syncer.Config{
		SnapshotEvery: uint64(c.Sync.SnapshotEvery),
		MaxHistory:    c.Sync.MaxHistory,
	}
}

// RoomConfig converts one room's settings to the room package's config.
func (r *RoomSettings) RoomConfig() room.Config {
	out := room.Config{
		SmallBlind: r.SmallBlind,
		BigBlind:   r.BigBlind,
		MinBuyIn:   r.BuyInMin,
		MaxBuyIn:   r.BuyInMax,
		MaxSeats:   r.MaxSeats,
		TableCount: r.TableCount,
		MaxMembers: r.MaxMembers,
		AutoStart:  r.AutoStart,
	}
	if d, err := time.ParseDuration(r.ActionTimeout); err == nil {
		out.ActionTimeout = d
	}
	if d, err := time.ParseDuration(r.DisconnectGrace); err == nil {
		out.DisconnectGrace = d
	}
	if d, err := time.ParseDuration(r.AutoStartDelay); err == nil {
		out.AutoStartDelay = d
	}
	return out
}

// RakeConfig converts one room's rake settings to the economy's config.
func (r *RoomSettings) RakeConfig() economy.RakeConfig {
	out := economy.RakeConfig{
		Percentage:         r.Rake.Percentage,
		Cap:                r.Rake.Cap,
		NoFlopNoRake:       r.Rake.NoFlopNoRake,
		ExcludeUncontested: r.Rake.ExcludeUncontested,
		RequiredStreet:     r.Rake.RequiredStreet,
	}
	switch r.Rake.Policy {
	case "tiered":
		out.Policy = economy.RakeTiered
	case "street":
		out.Policy = economy.RakeStreet
	case "zero":
		out.Policy = economy.RakeZero
	default:
		out.Policy = economy.RakeStandard
	}
	return out
}

// Hash returns a stable digest of the resolved configuration. Two configs
// that resolve to the same values hash identically regardless of file
// formatting or block order.
func (c *Config) Hash() string {
	var lines []string
	lines = append(lines,
		fmt.Sprintf("server|%s|%d|%s", c.Server.Address, c.Server.Port, c.Server.LogLevel),
		fmt.Sprintf("session|%s|%d|%s|%s", c.Session.HeartbeatTimeout,
			c.Session.MaxMissedHeartbeats, c.Session.DisconnectGrace, c.Session.SessionTimeout),
		fmt.Sprintf("sync|%d|%d", c.Sync.SnapshotEvery, c.Sync.MaxHistory),
	)
	rooms := make([]RoomSettings, len(c.Rooms))
	copy(rooms, c.Rooms)
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	for _, r := range rooms {
		rake := "none|0|0|false|false|"
		if r.Rake != nil {
			rake = fmt.Sprintf("%s|%d|%d|%t|%t|%s", r.Rake.Policy, r.Rake.Percentage,
				r.Rake.Cap, r.Rake.NoFlopNoRake, r.Rake.ExcludeUncontested, r.Rake.RequiredStreet)
		}
		lines = append(lines, fmt.Sprintf("room|%s|%d|%d|%d|%d|%d|%d|%d|%s|%s|%t|%s|%s",
			r.Name, r.SmallBlind, r.BigBlind, r.BuyInMin, r.BuyInMax, r.MaxSeats,
			r.TableCount, r.MaxMembers, r.ActionTimeout, r.DisconnectGrace,
			r.AutoStart, r.AutoStartDelay, rake))
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

func parseDurations(values ...string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(values))
	for _, v := range values {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", v)
		}
		if d <= 0 {
			return nil, fmt.Errorf("duration %q must be positive", v)
		}
		out = append(out, d)
	}
	return out, nil
}
