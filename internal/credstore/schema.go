package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KevinTCoughlin/licensegate/internal/license"
)

// Current schema version of each record kind. Bump the version and add a
// migration from the previous one whenever a record's shape changes.
var schemaVersions = map[Key]int{
	KeyLicense:     2,
	KeyTrial:       2,
	KeyCacheExpiry: 1,
}

type migration func(data map[string]any) error

// migrations[key][v] upgrades a record of key from version v to v+1.
var migrations = map[Key]map[int]migration{
	KeyLicense: {1: migrateLicenseV1},
	KeyTrial:   {1: migrateTrialV1},
}

type envelope struct {
	Schema int             `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

func encode(key Key, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Schema: version(key), Data: data})
}

// decode unwraps the envelope and migrates the payload to the current
// schema. Payloads without an envelope predate versioning and are schema 1.
// Payloads from a newer schema are decoded as-is; unknown fields are ignored.
func decode(key Key, raw []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Schema == 0 || len(env.Data) == 0 {
		env = envelope{Schema: 1, Data: raw}
	}

	current := version(key)
	if env.Schema >= current {
		return env.Data, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		return nil, fmt.Errorf("decoding schema %d payload: %w", env.Schema, err)
	}
	for v := env.Schema; v < current; v++ {
		m, ok := migrations[key][v]
		if !ok {
			return nil, fmt.Errorf("no migration for %s from schema %d", key, v)
		}
		if err := m(fields); err != nil {
			return nil, fmt.Errorf("migrating %s from schema %d: %w", key, v, err)
		}
	}
	return json.Marshal(fields)
}

func version(key Key) int {
	if v, ok := schemaVersions[key]; ok {
		return v
	}
	return 1
}

// Schema 1 licenses had no cache window, machine cap or reactivation
// counters.
func migrateLicenseV1(data map[string]any) error {
	if _, ok := data["cache_valid_until"]; !ok {
		s, _ := data["last_validated"].(string)
		validated, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return errors.New("schema 1 license without last_validated")
		}
		data["cache_valid_until"] = validated.Add(license.CacheWindow).Format(time.RFC3339Nano)
	}
	if _, ok := data["max_machines"]; !ok {
		tier, _ := data["tier"].(string)
		data["max_machines"] = license.Tier(tier).DefaultMaxMachines()
	}
	machines, _ := data["active_machines"].([]any)
	for _, m := range machines {
		entry, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := entry["reactivations_limit"]; !ok {
			entry["reactivations_limit"] = license.DefaultReactivationsLimit
		}
		if _, ok := entry["reactivations_used"]; !ok {
			entry["reactivations_used"] = 0
		}
	}
	if _, ok := data["activated_machines"]; !ok {
		data["activated_machines"] = len(machines)
	}
	return nil
}

// Schema 1 trials stored only the start date.
func migrateTrialV1(data map[string]any) error {
	if _, ok := data["duration_days"]; !ok {
		data["duration_days"] = license.DefaultTrialDays
	}
	return nil
}
