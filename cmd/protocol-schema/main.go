package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"trainarena/protocol"
)

// messages 每个字段对应一种线上消息，键名即消息的 type/action
type messages struct {
	AgentIDs    protocol.AgentIDs    `json:"agent_ids"`
	CheckName   protocol.CheckName   `json:"check_name"`
	CheckSciper protocol.CheckSciper `json:"check_sciper"`
	Direction   protocol.Direction   `json:"direction"`

	State            protocol.StateMessage     `json:"state"`
	InitialState     protocol.InitialState     `json:"initial_state"`
	Death            protocol.Death            `json:"death"`
	SpawnSuccess     protocol.SpawnSuccess     `json:"spawn_success"`
	Failure          protocol.Failure          `json:"respawn_failed"`
	DropWagonSuccess protocol.DropWagonSuccess `json:"drop_wagon_success"`
	WaitingRoom      protocol.WaitingRoom      `json:"waiting_room"`
	GameOver         protocol.GameOver         `json:"game_over"`
	Leaderboard      protocol.Leaderboard      `json:"leaderboard"`
	NameCheck        protocol.NameCheck        `json:"name_check"`
	SciperCheck      protocol.SciperCheck      `json:"sciper_check"`
	JoinSuccess      protocol.JoinSuccess      `json:"join_success"`
	Disconnect       protocol.Disconnect       `json:"disconnect"`
	Simple           protocol.Simple           `json:"ping"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(messages))
	schema.Title = "Train Arena wire protocol"
	schema.Description = "Newline-delimited JSON messages exchanged over UDP, client protocol " + protocol.ExpectedClientVersion
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
